package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ValentinBorsan/SapereHub/internal/session"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
)

type sessionClaims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Verifies session credentials issued by the platform's auth backend.
// Token issuance lives outside this service; the coordinator only needs
// to know who is on the other end of a connection and what role they
// carry.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Checks signature and expiry and extracts the participant identity.
func (v *Verifier) Verify(tokenStr string) (session.Identity, error) {
	if tokenStr == "" {
		return session.Identity{}, ErrMissingToken
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return session.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return session.Identity{}, ErrInvalidToken
	}

	role := session.Role(claims.Role)
	if role == "" {
		role = session.RoleMember
	}

	return session.Identity{
		ID:   claims.Subject,
		Role: role,
		Name: claims.Name,
	}, nil
}

// Issues a signed session token. Used by tests and local tooling; in
// production the platform backend signs with the shared secret.
func (v *Verifier) Issue(id session.Identity, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Role: string(id.Role),
		Name: id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Pulls the session token off an upgrade request: ?token=... first,
// then an Authorization bearer header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
