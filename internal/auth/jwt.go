package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token cannot be verified
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidRole is returned when the role claim is not in the matrix
	ErrInvalidRole = errors.New("invalid role")

	// ErrNoSecret is returned when no signing secret is configured
	ErrNoSecret = errors.New("signing secret not configured")
)

// Principal is the authenticated caller
type Principal struct {
	Subject string
	Tenant  string
	Role    string
}

// Claims is the token payload. The user claim is accepted as a fallback
// subject for tokens minted by older clients.
type Claims struct {
	jwt.RegisteredClaims
	User   string `json:"user,omitempty"`
	Tenant string `json:"tenant,omitempty"`
	Role   string `json:"role"`
}

// Validator verifies and issues HS256 tokens
type Validator struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithClock replaces time.Now for expiry checks and issuance
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a validator. Empty issuer or audience are not checked.
func NewValidator(secret, issuer, audience string, opts ...ValidatorOption) (*Validator, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	v := &Validator{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate verifies tokenString and returns its principal
func (v *Validator) Validate(tokenString string) (*Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return principalFrom(claims)
}

func principalFrom(claims *Claims) (*Principal, error) {
	subject := claims.Subject
	if subject == "" {
		subject = claims.User
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	if !KnownRole(claims.Role) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, claims.Role)
	}
	return &Principal{Subject: subject, Tenant: claims.Tenant, Role: claims.Role}, nil
}

// Issue signs a token for p valid for ttl
func (v *Validator) Issue(p Principal, ttl time.Duration) (string, error) {
	if !KnownRole(p.Role) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, p.Role)
	}
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Tenant: p.Tenant,
		Role:   p.Role,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
