// Package middleware carries the HTTP cross-cutting concerns every
// Mercuria-derived service wraps its mux in: CORS, access logging, panic
// recovery, and JWT-based identity verification.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/feltstack/pokerwallet/internal/common/logger"
	"github.com/feltstack/pokerwallet/internal/common/operatorkey"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Operator-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Infof("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Errorf("panic recovered: %v", err)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"success":false,"error":"internal error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const playerIDContextKey contextKey = "player_id"

// claims is the minimal set of claims the wallet service trusts from a
// token forwarded by the (out-of-scope) platform auth service.
type claims struct {
	jwt.RegisteredClaims
}

// JWTAuth verifies the bearer token's signature and extracts the
// player identity from its subject claim. The wallet service does not
// issue or refresh these tokens — authentication itself is an external
// collaborator's responsibility (§1) — it only guards against a caller
// addressing a different player's wallet than the one they authenticated
// as.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) < 8 || header[:7] != "Bearer " {
				respondUnauthorized(w)
				return
			}

			tokenString := header[7:]
			token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				respondUnauthorized(w)
				return
			}

			c, ok := token.Claims.(*claims)
			if !ok || c.Subject == "" {
				respondUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), playerIDContextKey, c.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorAuth gates the batch endpoints (process-winnings,
// rollback-hand, collect-rake) that move money across many wallets at
// once and so cannot be scoped to a single authenticated player. It
// checks the X-Operator-Key header against the bcrypt hash configured
// for the deployment.
func OperatorAuth(configuredHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Operator-Key")
			if !operatorkey.Verify(configuredHash, presented) {
				respondUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
}

// GetPlayerIDFromContext returns the player id a verified bearer token
// asserted, if JWTAuth ran for this request.
func GetPlayerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(playerIDContextKey).(string)
	return id, ok
}

// GenerateToken issues a short-lived identity token for playerID. Exposed
// for tests and for local tooling that stands in for the external auth
// service; production deployments receive tokens already signed upstream.
func GenerateToken(playerID, secret string, ttl time.Duration) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}
