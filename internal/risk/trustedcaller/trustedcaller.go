// Package trustedcaller validates the service token that lets internal
// callers skip the guard. The engine itself has no bypass input; this is the
// only way around scoring and it requires a signed token.
package trustedcaller

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "warden/pkg/domain-errors"
	wstrings "warden/pkg/platform/strings"
)

// Header carries the service token.
const Header = "X-Service-Token"

// MinSecretLength is the shortest accepted HS256 secret.
const MinSecretLength = 32

// Claims are the registered claims of a service token.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks service tokens against a shared secret, an audience and an
// allow-list of subjects.
type Verifier struct {
	secret   []byte
	audience string
	subjects []string
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source used for exp/nbf checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New builds a Verifier. Subjects are matched case-insensitively.
func New(secret, audience string, subjects []string, opts ...Option) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, dErrors.New(dErrors.CodeConfiguration, "service token secret too short")
	}
	if audience == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "service token audience is required")
	}
	v := &Verifier{
		secret:   []byte(secret),
		audience: audience,
		subjects: wstrings.DedupeAndTrimLower(subjects),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns the caller subject for a valid token. Anything else is a
// CodeUnauthorized error.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing service token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.secret, nil
	},
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "service token expired")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid service token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid service token")
	}
	subject := strings.ToLower(strings.TrimSpace(claims.Subject))
	if !slices.Contains(v.subjects, subject) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "service token subject not allowed")
	}
	return subject, nil
}

// Issue signs a token for subject valid for ttl. Used by operators and tests.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return t.SignedString(v.secret)
}
