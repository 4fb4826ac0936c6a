package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is a read-only summary of how an engine is configured.
type Report struct {
	ProductionMode          bool
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	CSRFTTL                 time.Duration
	OTPDigits               int
	OTPTTL                  time.Duration
	OTPAttemptLimitActive   bool
	Argon2                  PasswordReport
	SingleSessionEnforced   bool
	RefreshRotationEnabled  bool
	RateLimitingActive      bool
	EmailVerificationActive bool
	PasswordResetActive     bool
	AuditEnabled            bool
	DistinctTokenSecrets    bool
}

type ReportInput struct {
	ProductionMode       bool
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	CSRFTTL              time.Duration
	OTPDigits            int
	OTPTTL               time.Duration
	MaxOTPAttempts       int
	Password             PasswordReport
	RegistrationCooldown time.Duration
	LoginCooldown        time.Duration
	ResendCooldown       time.Duration
	ResetCooldown        time.Duration
	MarkEmailVerified    bool
	AuditEnabled         bool
	Secrets              [][]byte
}

func BuildReport(input ReportInput) Report {
	rateLimiting := input.RegistrationCooldown > 0 &&
		input.LoginCooldown > 0 &&
		input.ResendCooldown > 0 &&
		input.ResetCooldown > 0

	return Report{
		ProductionMode:        input.ProductionMode,
		SigningAlgorithm:      "hs256",
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		CSRFTTL:               input.CSRFTTL,
		OTPDigits:             input.OTPDigits,
		OTPTTL:                input.OTPTTL,
		OTPAttemptLimitActive: input.MaxOTPAttempts > 0,
		Argon2:                input.Password,
		SingleSessionEnforced: true,
		// refresh tokens are replaced only at login and password reset
		RefreshRotationEnabled:  false,
		RateLimitingActive:      rateLimiting,
		EmailVerificationActive: !input.MarkEmailVerified,
		PasswordResetActive:     true,
		AuditEnabled:            input.AuditEnabled,
		DistinctTokenSecrets:    distinct(input.Secrets),
	}
}

func distinct(secrets [][]byte) bool {
	seen := make(map[string]struct{}, len(secrets))
	for _, s := range secrets {
		if _, ok := seen[string(s)]; ok {
			return false
		}
		seen[string(s)] = struct{}{}
	}
	return true
}
