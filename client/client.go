package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/MrEthical07/otpAuth"
)

// API paths the coordinator treats specially, relative to Config.BaseURL.
const (
	RefreshPath   = "/auth/refresh-token"
	CSRFPath      = "/auth/refresh-csrf"
	VerifyOTPPath = "/auth/verify-otp"
)

const (
	csrfCookie   = "csrfToken"
	csrfHeader   = "X-CSRF-Token"
	maxBodyBytes = 4 << 20
)

var authCookies = []string{"accessToken", "refreshToken", csrfCookie}

// preSession codes are 401s that no refresh can fix.
var preSession = map[string]bool{
	otpAuth.ErrInvalidCredentials.Code:         true,
	otpAuth.ErrVerificationSessionExpired.Code: true,
}

// Config configures a [Coordinator].
type Config struct {
	// BaseURL is the API root, for example "https://auth.example.com/api".
	BaseURL string
	// HTTPClient is used for every call. A cookie jar is installed on a copy
	// when it has none.
	HTTPClient *http.Client
	// OnSessionEnd runs once per login when refresh fails for good.
	OnSessionEnd func(err error)
	Logger       *slog.Logger
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("otpauth api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("otpauth api: %d: %s", e.Status, e.Message)
}

// Response is a buffered successful response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the envelope's data field into v.
func (r *Response) Decode(v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return errors.New("otpauth api: response has no data")
	}
	return json.Unmarshal(env.Data, v)
}

func (r *Response) apiError() *APIError {
	if r.StatusCode < http.StatusBadRequest {
		return nil
	}
	e := &APIError{Status: r.StatusCode}
	var env struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(r.Body, &env) == nil {
		e.Message, e.Code = env.Message, env.Code
	}
	if e.Message == "" {
		e.Message = http.StatusText(r.StatusCode)
	}
	if secs, err := strconv.Atoi(r.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	RefreshState   string
	RefreshWaiters int
	RefreshCalls   int64
	CSRFState      string
	CSRFWaiters    int
	CSRFCalls      int64
	SessionEnded   bool
}

// Coordinator is safe for concurrent use. At most one refresh call and one
// CSRF rotation call are outstanding at any time.
type Coordinator struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	onEnd  func(error)

	refresh flight
	csrf    flight

	mu    sync.Mutex
	ended bool
}

// New validates cfg and returns a coordinator.
func New(cfg Config) (*Coordinator, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New("client: BaseURL must be an absolute URL")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		cp := *hc
		cp.Jar = jar
		hc = &cp
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Coordinator{
		base:   base,
		http:   hc,
		logger: logger,
		onEnd:  cfg.OnSessionEnd,
	}, nil
}

// Jar returns the cookie jar holding the session cookies.
func (c *Coordinator) Jar() http.CookieJar {
	return c.http.Jar
}

// MarkLoggedIn starts a new login generation so a later refresh failure
// runs the session-end hook again. A successful call to VerifyOTPPath does
// this implicitly.
func (c *Coordinator) MarkLoggedIn() {
	c.mu.Lock()
	c.ended = false
	c.mu.Unlock()
}

// Stats reports the flight states and call counts.
func (c *Coordinator) Stats() Stats {
	var s Stats
	var state flightState
	state, s.RefreshWaiters, s.RefreshCalls = c.refresh.snapshot()
	s.RefreshState = state.String()
	state, s.CSRFWaiters, s.CSRFCalls = c.csrf.snapshot()
	s.CSRFState = state.String()
	c.mu.Lock()
	s.SessionEnded = c.ended
	c.mu.Unlock()
	return s
}

type action uint8

const (
	actionFail action = iota
	actionRefresh
	actionRotateCSRF
	actionEndSession
)

func classify(path string, e *APIError) action {
	switch e.Status {
	case http.StatusUnauthorized:
		if strings.HasPrefix(e.Code, "REFRESH_") {
			return actionEndSession
		}
		if path == RefreshPath {
			if e.Code == otpAuth.ErrSessionInvalidated.Code {
				return actionEndSession
			}
			return actionFail
		}
		if preSession[e.Code] {
			return actionFail
		}
		return actionRefresh
	case http.StatusForbidden:
		if strings.HasPrefix(e.Code, "CSRF_") && path != CSRFPath {
			return actionRotateCSRF
		}
	}
	return actionFail
}

// Do sends one request. path is relative to BaseURL and may carry a query.
// body, when non-nil, is sent as JSON. Any non-2xx outcome is returned as an
// *APIError after the recovery described in the package doc.
func (c *Coordinator) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = raw
	}

	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	route := strings.TrimPrefix(target.Path, c.base.Path)

	resp, err := c.send(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	apiErr := resp.apiError()
	if apiErr == nil {
		c.succeeded(route)
		return resp, nil
	}

	switch classify(route, apiErr) {
	case actionRefresh:
		if err := c.refresh.do(ctx, c.runRefresh); err != nil {
			return nil, err
		}
	case actionRotateCSRF:
		if err := c.csrf.do(ctx, c.runRotateCSRF); err != nil {
			return nil, err
		}
	case actionEndSession:
		c.endSession(apiErr)
		return nil, apiErr
	default:
		return nil, apiErr
	}

	// replayed once; whatever happens now goes to the caller
	resp, err = c.send(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return nil, apiErr
	}
	c.succeeded(route)
	return resp, nil
}

func (c *Coordinator) succeeded(route string) {
	if route == VerifyOTPPath {
		c.MarkLoggedIn()
	}
}

// runRefresh is the refresh flight's call. A 4xx ends the session; transport
// errors and 5xx only reject the waiters.
func (c *Coordinator) runRefresh(ctx context.Context) error {
	target, err := c.resolve(RefreshPath)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		if apiErr.Status < http.StatusInternalServerError {
			c.endSession(apiErr)
		}
		return apiErr
	}
	c.logger.Debug("otpauth client: access token refreshed")
	return nil
}

func (c *Coordinator) runRotateCSRF(ctx context.Context) error {
	target, err := c.resolve(CSRFPath)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return apiErr
	}
	c.logger.Debug("otpauth client: csrf token rotated")
	return nil
}

func (c *Coordinator) endSession(cause *APIError) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()

	c.clearCookies()
	c.logger.Info("otpauth client: session ended", "status", cause.Status, "code", cause.Code)
	if c.onEnd != nil {
		c.onEnd(cause)
	}
}

func (c *Coordinator) clearCookies() {
	root := &url.URL{Scheme: c.base.Scheme, Host: c.base.Host, Path: "/"}
	expired := make([]*http.Cookie, 0, len(authCookies))
	for _, name := range authCookies {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	c.http.Jar.SetCookies(root, expired)
}

func (c *Coordinator) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("client: bad path %q: %w", path, err)
	}
	u := c.base.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u, nil
}

func (c *Coordinator) cookie(u *url.URL, name string) string {
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Coordinator) send(ctx context.Context, method string, u *url.URL, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !otpAuth.CSRFExempt(method) {
		if token := c.cookie(u, csrfCookie); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
