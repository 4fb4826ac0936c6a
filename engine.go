package otpAuth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/otpAuth/internal/audit"
	"github.com/MrEthical07/otpAuth/internal/limiters"
	"github.com/MrEthical07/otpAuth/internal/stores"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/password"
	"github.com/MrEthical07/otpAuth/session"
)

// Engine defines a public type used by otpAuth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// All methods are safe for concurrent use.
type Engine struct {
	config        Config
	sessions      *session.Store
	pending       *stores.PendingRegistrationStore
	otps          *stores.OTPStore
	verifications *stores.VerificationSessionStore
	usedTokens    *stores.UsedTokenStore
	limiters      *limiters.Limiters
	tokens        *jwt.Manager
	hasher        *password.Argon2
	dummyHash     string
	accounts      AccountStore
	mailer        Mailer
	messages      *messageTemplates
	validator     PasswordValidator
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// Close flushes and stops the audit dispatcher. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// TokenLifetimes are the cookie lifetimes the HTTP layer should use.
type TokenLifetimes struct {
	Access              time.Duration
	Refresh             time.Duration
	CSRF                time.Duration
	VerificationSession time.Duration
}

// Lifetimes reports the configured token lifetimes.
func (e *Engine) Lifetimes() TokenLifetimes {
	if e == nil {
		return TokenLifetimes{}
	}
	return TokenLifetimes{
		Access:              e.config.Tokens.AccessTTL,
		Refresh:             e.config.Tokens.RefreshTTL,
		CSRF:                e.config.CSRF.TTL,
		VerificationSession: e.config.Login.VerificationSessionTTL,
	}
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDelivered reports how many audit events reached the sink.
func (e *Engine) AuditDelivered() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Delivered()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the ephemeral store and reports its round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	latency, err := e.sessions.Ping(ctx)
	if err != nil {
		return latency, infraError("ping", err)
	}
	return latency, nil
}

func (e *Engine) ready() error {
	if e == nil || e.sessions == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, sessionID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["user_agent"] = ua
	}
	if err != nil {
		event.Error = err.Error()
		if ae, ok := AsError(err); ok {
			event.Code = ae.Code
		}
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	e.logger.WarnContext(ctx, msg, args...)
}

// storeError maps an AccountStore error into the engine taxonomy.
func (e *Engine) storeError(op string, err error) *Error {
	switch {
	case errors.Is(err, ErrStoreNotFound):
		return wrap(ErrAccountNotFound, err)
	case errors.Is(err, ErrStoreConflict):
		return wrap(ErrAccountExists, err)
	}
	return infraError(op, err)
}

func (e *Engine) loadProjection(ctx context.Context, accountID string) (*Projection, bool, error) {
	acc, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return acc.projection(), true, nil
}

// dropProjection invalidates the cached projection so the next request re-reads the store.
func (e *Engine) dropProjection(ctx context.Context, accountID string) {
	if err := e.sessions.DeleteProjection(ctx, accountID); err != nil {
		e.warn(ctx, "otpauth: projection invalidation failed", "account_id", accountID, "error", err)
	}
}

func (e *Engine) sendMail(ctx context.Context, msg Message) error {
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricMailFailure)
		e.logger.ErrorContext(ctx, "otpauth: mail delivery failed", "subject", msg.Subject, "error", err)
		return err
	}
	return nil
}
