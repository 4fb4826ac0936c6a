package server

import (
	"net/http"
	"time"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/middleware"
)

var errPasswordMismatch = &otpAuth.Error{Kind: otpAuth.KindValidation, Code: "PASSWORD_MISMATCH", Message: "Passwords don't match."}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		s.fail(w, r, errPasswordMismatch)
		return
	}
	err := s.engine.BeginRegistration(r.Context(), otpAuth.RegistrationInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Verification link sent. Please check your email.", nil)
}

func (s *Server) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.ConfirmRegistration(r.Context(), r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Account verified. You can now log in.", account)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type challengeResponse struct {
	State        string    `json:"state"`
	OTPExpiresAt time.Time `json:"otpExpiresAt"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	challenge, err := s.engine.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.SetVerification(w, challenge.VerificationSessionID)
	respond(w, http.StatusOK, "OTP sent to your email.", challengeResponse{
		State:        challenge.State,
		OTPExpiresAt: challenge.OTPExpiresAt,
	})
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

// sessionResponse also carries the CSRF token for clients that cannot read cookies.
type sessionResponse struct {
	Account   *otpAuth.Projection `json:"account"`
	SessionID string              `json:"sessionId"`
	LoginAt   time.Time           `json:"loginAt"`
	CSRFToken string              `json:"csrfToken"`
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	established, err := s.engine.VerifyOTP(r.Context(), middleware.CookieValue(r, middleware.VerificationCookie), req.OTP)
	if err != nil {
		if otpAuth.KindOf(err) == otpAuth.KindAuthentication {
			s.cookies.ClearVerification(w)
		}
		s.fail(w, r, err)
		return
	}
	s.cookies.SetSession(w, established)
	respond(w, http.StatusOK, "Login successful.", sessionResponse{
		Account:   established.Account,
		SessionID: established.SessionID,
		LoginAt:   established.LoginAt,
		CSRFToken: established.CSRFToken,
	})
}

func (s *Server) resendOTP(w http.ResponseWriter, r *http.Request) {
	expiresAt, err := s.engine.ResendOTP(r.Context(), middleware.CookieValue(r, middleware.VerificationCookie))
	if err != nil {
		if otpAuth.KindOf(err) == otpAuth.KindAuthentication {
			s.cookies.ClearVerification(w)
		}
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "A new OTP has been sent.", challengeResponse{
		State:        "OTP_PENDING",
		OTPExpiresAt: expiresAt,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Refresh(r.Context(), middleware.CookieValue(r, middleware.RefreshCookie))
	if err != nil {
		if otpAuth.KindOf(err) != otpAuth.KindInfrastructure {
			s.cookies.ClearAuth(w)
		}
		s.fail(w, r, err)
		return
	}
	s.cookies.SetAccess(w, res.AccessToken)
	respond(w, http.StatusOK, "Access token refreshed.", map[string]any{"expiresAt": res.ExpiresAt})
}

func (s *Server) refreshCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.RotateCSRF(r.Context(), session(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.SetCSRF(w, token)
	respond(w, http.StatusOK, "CSRF token refreshed.", nil)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), session(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.ClearAuth(w)
	respond(w, http.StatusOK, "Logged out.", nil)
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.VerifyEmail(r.Context(), r.PathValue("token")); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Email verified.", nil)
}
