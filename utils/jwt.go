package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventide/models"
)

// ErrUnauthenticated is returned for a missing, malformed, expired or
// otherwise untrusted bearer token.
var ErrUnauthenticated = errors.New("unauthenticated")

// VerifierConfig selects how bearer tokens are checked. Exactly one of
// Secret (HS256) or PublicKeyPEM (RS256) must be set.
type VerifierConfig struct {
	Secret       []byte
	PublicKeyPEM []byte
	Issuer       string
	Audience     string
}

// Verifier turns a bearer token issued by the identity provider into an
// identity claim.
type Verifier struct {
	key    any
	parser *jwt.Parser
}

// identityClaims is the token payload: registered claims plus the profile
// fields an OIDC provider adds.
type identityClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	var (
		key    any
		method string
	)
	switch {
	case len(cfg.PublicKeyPEM) > 0:
		pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		key, method = pub, jwt.SigningMethodRS256.Alg()
	case len(cfg.Secret) > 0:
		key, method = cfg.Secret, jwt.SigningMethodHS256.Alg()
	default:
		return nil, errors.New("verifier needs a secret or a public key")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{key: key, parser: jwt.NewParser(opts...)}, nil
}

// Verify checks the token signature and registered claims and returns the
// identity it vouches for.
func (v *Verifier) Verify(token string) (models.IdentityClaim, error) {
	var claims identityClaims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return models.IdentityClaim{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return models.IdentityClaim{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return models.IdentityClaim{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Nickname: claims.Nickname,
		Picture:  claims.Picture,
	}, nil
}

// TokenOptions are the registered claims GenerateToken stamps on a token.
type TokenOptions struct {
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken signs an HS256 token for claim. It stands in for the
// identity provider in local development and tests.
func GenerateToken(secret []byte, claim models.IdentityClaim, opts TokenOptions) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claim.Subject,
			Issuer:    opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    claim.Email,
		Name:     claim.Name,
		Nickname: claim.Nickname,
		Picture:  claim.Picture,
	}
	if opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{opts.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

