package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken = errors.New("token is invalid")
	ErrExpiredToken = errors.New("token is expired")
)

// Claims carried by access tokens. Owner resolution prefers UserID and falls
// back to the standard subject.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// AuthConfig configures Auth.
type AuthConfig struct {
	Secret string
	// Disabled trusts the X-User-ID header instead of a token.
	Disabled bool
}

// Auth resolves the owning user of a request and stores it in the context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Disabled {
				ownerID := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if ownerID == "" {
					WriteError(w, http.StatusUnauthorized, "X-User-ID header is required")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				WriteError(w, http.StatusUnauthorized, "Invalid token format")
				return
			}

			ownerID, err := ValidateToken(cfg.Secret, tokenString)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
		})
	}
}

// ValidateToken checks an HS256 token and returns its owner id.
func ValidateToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrExpiredToken
		}
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	ownerID := claims.UserID
	if ownerID == "" {
		ownerID = claims.Subject
	}
	if ownerID == "" {
		return "", ErrInvalidToken
	}
	return ownerID, nil
}

// NewToken signs an access token for ownerID valid for ttl.
func NewToken(secret, ownerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: ownerID,
		StandardClaims: jwt.StandardClaims{
			Subject:   ownerID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WithOwner stores the owning user id in ctx.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerFromContext returns the owner id set by Auth, or "".
func OwnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ownerIDKey).(string)
	return id
}
