package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/otpAuth"
)

// Envelope is the JSON body of every error response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its status and writes the envelope. Errors that are
// not *otpAuth.Error are reported as infrastructure failures without detail.
// Rate-limited errors carrying a wait also set Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := otpAuth.AsError(err)
	if !ok {
		e = otpAuth.ErrInfrastructure
	}
	status := e.HTTPStatus()
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int((e.RetryAfter+time.Second-1)/time.Second)))
	}
	env := Envelope{Status: "fail", Message: e.Message, Code: e.Code}
	if status >= http.StatusInternalServerError {
		env.Status = "error"
	}
	if env.Message == "" {
		env.Message = http.StatusText(status)
	}
	WriteJSON(w, status, env)
}
