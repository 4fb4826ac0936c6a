package otpAuth

import "github.com/MrEthical07/otpAuth/internal/security"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport is the argon2id part of [SecurityReport].
type PasswordConfigReport = security.PasswordReport

// SecurityReport summarizes the configuration the engine was built with.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode: cfg.ProductionMode,
		AccessTTL:      cfg.Tokens.AccessTTL,
		RefreshTTL:     cfg.Tokens.RefreshTTL,
		CSRFTTL:        cfg.CSRF.TTL,
		OTPDigits:      cfg.Login.OTPDigits,
		OTPTTL:         cfg.Login.OTPTTL,
		MaxOTPAttempts: cfg.Login.MaxOTPAttempts,
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		RegistrationCooldown: cfg.Registration.Cooldown,
		LoginCooldown:        cfg.Login.Cooldown,
		ResendCooldown:       cfg.Login.ResendCooldown,
		ResetCooldown:        cfg.PasswordReset.Cooldown,
		MarkEmailVerified:    cfg.Registration.MarkEmailVerified,
		AuditEnabled:         cfg.Audit.Enabled,
		Secrets: [][]byte{
			cfg.Tokens.AccessSecret,
			cfg.Tokens.RefreshSecret,
			cfg.Tokens.ResetSecret,
			cfg.Tokens.VerificationSecret,
		},
	})
}
