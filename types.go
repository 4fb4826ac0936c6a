package otpAuth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/otpAuth/internal/audit"
	internalmetrics "github.com/MrEthical07/otpAuth/internal/metrics"
	"github.com/MrEthical07/otpAuth/session"
)

// Role is the closed set of account roles.
type Role string

const (
	// RoleUser is the default role for new accounts.
	RoleUser Role = "user"
	// RoleAdmin may list accounts and change roles.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole normalizes s and rejects unknown roles with ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Account defines a public type used by otpAuth APIs.
//
// Account is the durable record held by an [AccountStore].
type Account struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Projection is the cached read model {id, email, username, role}.
type Projection = session.Projection

func (a *Account) projection() *Projection {
	return &Projection{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
		Role:     string(a.Role),
	}
}

var (
	// ErrStoreNotFound is returned by an AccountStore for an unknown account.
	ErrStoreNotFound = errors.New("account store: not found")
	// ErrStoreConflict is returned by an AccountStore for a duplicate email or username.
	ErrStoreConflict = errors.New("account store: conflict")
)

// AccountStore is the durable account collaborator. Implementations must be
// safe for concurrent use and return ErrStoreNotFound / ErrStoreConflict
// (possibly wrapped) for the corresponding conditions.
type AccountStore interface {
	// FindByIdentifier resolves identifier against email OR username in one lookup.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// Exists reports whether any account has email or username.
	Exists(ctx context.Context, email, username string) (bool, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateUsername(ctx context.Context, id, username string) error
	UpdateRole(ctx context.Context, id string, role Role) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	List(ctx context.Context) ([]Account, error)
}

// Message is one outgoing mail.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a [Message]. Transport is the caller's concern.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordValidator decides whether a new password is acceptable. The engine
// wraps a non-nil result in ErrPasswordPolicy.
type PasswordValidator interface {
	Validate(password string) error
}

// PasswordValidatorFunc adapts a function to [PasswordValidator].
type PasswordValidatorFunc func(password string) error

func (f PasswordValidatorFunc) Validate(password string) error { return f(password) }

// SessionContext is what an authenticated request exposes to downstream handlers.
type SessionContext struct {
	AccountID string
	SessionID string
	Role      Role
	Email     string
	Username  string
}

// RegistrationInput is one signup submission.
type RegistrationInput struct {
	Username string
	Email    string
	Password string
}

// LoginChallenge is returned by Login. VerificationSessionID travels as the v_s cookie.
type LoginChallenge struct {
	VerificationSessionID string
	State                 string
	OTPExpiresAt          time.Time
}

// EstablishedSession is returned by VerifyOTP.
type EstablishedSession struct {
	Account             *Projection
	SessionID           string
	LoginAt             time.Time
	AccessToken         string
	RefreshToken        string
	CSRFToken           string
	SupersededSessionID string
}

// RefreshResult carries the new access token minted by Refresh.
type RefreshResult struct {
	AccountID   string
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// UsernameAvailability is the answer of CheckUsername.
type UsernameAvailability string

const (
	UsernameAvailable UsernameAvailability = "available"
	UsernameCurrent   UsernameAvailability = "current"
	UsernameTaken     UsernameAvailability = "taken"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]; a nil logger means slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// Audit event types.
const (
	EventRegistrationStarted    = "registration_started"
	EventRegistrationConfirmed  = "registration_confirmed"
	EventLoginOTPSent           = "login_otp_sent"
	EventLoginFailed            = "login_failed"
	EventOTPVerified            = "otp_verified"
	EventOTPFailed              = "otp_failed"
	EventOTPResent              = "otp_resent"
	EventSessionEstablished     = "session_established"
	EventSessionSuperseded      = "session_superseded"
	EventRefreshSuccess         = "refresh_success"
	EventRefreshFailed          = "refresh_failed"
	EventLogout                 = "logout"
	EventCSRFRotated            = "csrf_rotated"
	EventCSRFRejected           = "csrf_rejected"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordResetCompleted = "password_reset_completed"
	EventPasswordUpdated        = "password_updated"
	EventUsernameUpdated        = "username_updated"
	EventRoleUpdated            = "role_updated"
	EventEmailVerified          = "email_verified"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricRegistrationStarted      = MetricID(internalmetrics.MetricRegistrationStarted)
	MetricRegistrationConfirmed    = MetricID(internalmetrics.MetricRegistrationConfirmed)
	MetricRegistrationRejected     = MetricID(internalmetrics.MetricRegistrationRejected)
	MetricRegistrationRateLimited  = MetricID(internalmetrics.MetricRegistrationRateLimited)
	MetricLoginOTPSent             = MetricID(internalmetrics.MetricLoginOTPSent)
	MetricLoginFailure             = MetricID(internalmetrics.MetricLoginFailure)
	MetricLoginRateLimited         = MetricID(internalmetrics.MetricLoginRateLimited)
	MetricOTPVerified              = MetricID(internalmetrics.MetricOTPVerified)
	MetricOTPFailure               = MetricID(internalmetrics.MetricOTPFailure)
	MetricOTPAttemptsExceeded      = MetricID(internalmetrics.MetricOTPAttemptsExceeded)
	MetricOTPResent                = MetricID(internalmetrics.MetricOTPResent)
	MetricSessionCreated           = MetricID(internalmetrics.MetricSessionCreated)
	MetricSessionSuperseded        = MetricID(internalmetrics.MetricSessionSuperseded)
	MetricRefreshSuccess           = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure           = MetricID(internalmetrics.MetricRefreshFailure)
	MetricSessionInvalidated       = MetricID(internalmetrics.MetricSessionInvalidated)
	MetricAuthenticateSuccess      = MetricID(internalmetrics.MetricAuthenticateSuccess)
	MetricAuthenticateFailure      = MetricID(internalmetrics.MetricAuthenticateFailure)
	MetricProjectionCacheHit       = MetricID(internalmetrics.MetricProjectionCacheHit)
	MetricProjectionCacheMiss      = MetricID(internalmetrics.MetricProjectionCacheMiss)
	MetricLogout                   = MetricID(internalmetrics.MetricLogout)
	MetricCSRFRotated              = MetricID(internalmetrics.MetricCSRFRotated)
	MetricCSRFRejected             = MetricID(internalmetrics.MetricCSRFRejected)
	MetricPasswordResetRequest     = MetricID(internalmetrics.MetricPasswordResetRequest)
	MetricPasswordResetSuccess     = MetricID(internalmetrics.MetricPasswordResetSuccess)
	MetricPasswordResetFailure     = MetricID(internalmetrics.MetricPasswordResetFailure)
	MetricPasswordChanged          = MetricID(internalmetrics.MetricPasswordChanged)
	MetricEmailVerificationSuccess = MetricID(internalmetrics.MetricEmailVerificationSuccess)
	MetricMailFailure              = MetricID(internalmetrics.MetricMailFailure)
	MetricAuthenticateLatency      = MetricID(internalmetrics.MetricAuthenticateLatency)
)

// Metrics is the engine's lock-free counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
