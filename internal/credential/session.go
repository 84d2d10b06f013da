package credential

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ymmfilter/compat-service/internal/model"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "ymm_session"

// SessionClaims binds a session to one store hash. The token itself is
// never placed in the cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	StoreHash string `json:"store_hash"`
}

// IssueSession signs a session token for storeHash valid for ttl.
func IssueSession(secret []byte, storeHash string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("session secret is empty")
	}
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		StoreHash: storeHash,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseSession validates a session token, pinning the signing method to HS256.
func ParseSession(secret []byte, tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.StoreHash == "" {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// CookieSession reads the session from a request cookie.
type CookieSession struct {
	secret []byte
	req    *http.Request
}

// NewCookieSession returns a Session over r. With an empty secret sessions
// are disabled and every lookup reports ErrNoSession.
func NewCookieSession(secret []byte, r *http.Request) *CookieSession {
	return &CookieSession{secret: secret, req: r}
}

func (s *CookieSession) StoreCredential() (model.StoreCredential, error) {
	if len(s.secret) == 0 || s.req == nil {
		return model.StoreCredential{}, ErrNoSession
	}
	c, err := s.req.Cookie(SessionCookie)
	if err != nil {
		return model.StoreCredential{}, ErrNoSession
	}
	claims, err := ParseSession(s.secret, c.Value)
	if err != nil {
		return model.StoreCredential{}, fmt.Errorf("session: %w", err)
	}
	return model.StoreCredential{StoreID: claims.StoreHash}, nil
}
