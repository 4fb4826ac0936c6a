package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm for one token purpose.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Purpose is carried in the "typ" claim and selects the key.
type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeRefresh      Purpose = "refresh"
	PurposeReset        Purpose = "reset"
	PurposeVerification Purpose = "verify_email"
)

var (
	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, wrong purpose and malformed input.
	ErrTokenInvalid = errors.New("token invalid")
)

// KeyConfig is the signing material and lifetime for one purpose.
type KeyConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	TTL           time.Duration
}

// Config defines the codec.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Keys         map[Purpose]KeyConfig
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// Manager issues and parses tokens for every configured purpose.
type Manager struct {
	config Config
}

// Claims is the payload shared by every purpose. Subject is the account id;
// SID is set only for access and refresh tokens.
type Claims struct {
	Purpose Purpose `json:"typ"`
	SID     string  `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a codec.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("no token keys configured")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	keys := make(map[Purpose]KeyConfig, len(cfg.Keys))
	for purpose, key := range cfg.Keys {
		if key.TTL <= 0 {
			return nil, fmt.Errorf("invalid TTL configuration for %s tokens", purpose)
		}
		switch key.SigningMethod {
		case "", MethodHS256:
			key.SigningMethod = MethodHS256
			if len(key.PrivateKey) == 0 {
				return nil, fmt.Errorf("hs256 requires a secret for %s tokens", purpose)
			}
		case MethodEd25519:
			if len(key.PrivateKey) > 0 {
				if _, err := parseEdPrivateKey(key.PrivateKey); err != nil {
					return nil, err
				}
			}
			if _, err := parseEdPublicKey(key.PublicKey); err != nil {
				return nil, err
			}
		default:
			return nil, errors.New("unsupported signing method")
		}
		keys[purpose] = key
	}
	cfg.Keys = keys

	return &Manager{config: cfg}, nil
}

// TTL reports the configured lifetime for purpose, or zero.
func (j *Manager) TTL(purpose Purpose) time.Duration {
	return j.config.Keys[purpose].TTL
}

// Issue mints a token for purpose. Reset and verification tokens get a
// random jti so that a consumed token can be remembered until it expires.
func (j *Manager) Issue(purpose Purpose, subject, sid string, now time.Time) (string, *Claims, error) {
	key, ok := j.config.Keys[purpose]
	if !ok {
		return "", nil, fmt.Errorf("no key configured for %s tokens", purpose)
	}
	if subject == "" {
		return "", nil, errors.New("empty token subject")
	}

	claims := &Claims{
		Purpose: purpose,
		SID:     sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(key.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	if purpose == PurposeReset || purpose == PurposeVerification {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(methodFor(key), claims)
	signKey, err := signKeyFor(key)
	if err != nil {
		return "", nil, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies tokenStr as a purpose token. Expiry maps to ErrTokenExpired;
// every other failure maps to ErrTokenInvalid.
func (j *Manager) Parse(purpose Purpose, tokenStr string) (*Claims, error) {
	key, ok := j.config.Keys[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: no key for %s tokens", ErrTokenInvalid, purpose)
	}
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	method := methodFor(key)
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return verifyKeyFor(key)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q", ErrTokenInvalid, claims.Purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if (purpose == PurposeAccess || purpose == PurposeRefresh) && claims.SID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(j.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
		}
	}

	return claims, nil
}

func methodFor(key KeyConfig) jwt.SigningMethod {
	if key.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func signKeyFor(key KeyConfig) (interface{}, error) {
	if key.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(key.PrivateKey)
	}
	return key.PrivateKey, nil
}

func verifyKeyFor(key KeyConfig) (interface{}, error) {
	if key.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(key.PublicKey)
	}
	return key.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
