package server

import (
	"net/http"

	"github.com/MrEthical07/otpAuth"
)

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.CurrentAccount(r.Context(), session(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Account fetched.", account)
}

func (s *Server) checkUsername(w http.ResponseWriter, r *http.Request) {
	availability, err := s.engine.CheckUsername(r.Context(), session(r), r.URL.Query().Get("username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Username checked.", map[string]any{
		"availability": availability,
		"available":    availability == otpAuth.UsernameAvailable,
	})
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (s *Server) updateUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := s.engine.UpdateUsername(r.Context(), session(r), req.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Username updated.", account)
}

func (s *Server) requestEmailVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RequestEmailVerification(r.Context(), session(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Verification link sent.", nil)
}

type forgetRequest struct {
	Email string `json:"email"`
}

func (s *Server) forgetPassword(w http.ResponseWriter, r *http.Request) {
	var req forgetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "If an account exists for that email, a reset link has been sent.", nil)
}

type resetRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		s.fail(w, r, errPasswordMismatch)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), r.PathValue("token"), req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.ClearAuth(w)
	respond(w, http.StatusOK, "Password reset. Please log in again.", nil)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		s.fail(w, r, errPasswordMismatch)
		return
	}
	if err := s.engine.UpdatePassword(r.Context(), session(r), req.CurrentPassword, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Password updated.", nil)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.ListAccounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Accounts fetched.", accounts)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := s.engine.UpdateRole(r.Context(), r.PathValue("userId"), req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Role updated.", account)
}
