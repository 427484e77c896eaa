package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/restaurant-backend/api/responses"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

const maxLoginBody = 16 << 10

// windowLimiter is satisfied by *redis.Client.
type windowLimiter interface {
	Allow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one login surface (password or Telegram) per
// client IP and per account.
type AuthRateLimitPolicy struct {
	name         string
	window       time.Duration
	ipLimit      int64
	accountLimit int64
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, accountLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{
		name:         name,
		window:       window,
		ipLimit:      int64(ipLimit),
		accountLimit: int64(accountLimit),
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.accountLimit > 0)
}

type rateCounter struct {
	dimension string
	value     string
	limit     int64
}

func (c rateCounter) scope(policy string) string {
	return "auth:" + policy + ":" + c.dimension + ":" + c.value
}

// AuthRateLimit rejects login attempts with 429 once either the IP counter or
// the account counter for the current window is exhausted. The account is the
// login name or Telegram id, hashed before it reaches Redis.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var counters []rateCounter
			if ip := clientIP(r); policy.ipLimit > 0 && ip != "" {
				counters = append(counters, rateCounter{dimension: "ip", value: ip, limit: policy.ipLimit})
			}
			if policy.accountLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if account := loginAccount(body); account != "" {
					counters = append(counters, rateCounter{dimension: "account", value: digest(account), limit: policy.accountLimit})
				}
			}

			for _, c := range counters {
				allowed, attempts, err := limiter.Allow(ctx, c.scope(policy.name), c.limit, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":    policy.name,
							"dimension": c.dimension,
							"attempts":  attempts,
							"limit":     c.limit,
						}), "login attempts throttled")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// loginAccount reads the password login name or, for the Telegram widget,
// the numeric account id.
func loginAccount(payload []byte) string {
	var body struct {
		Login string          `json:"login"`
		ID    json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if login := strings.ToLower(strings.TrimSpace(body.Login)); login != "" {
		return "login:" + login
	}
	if id := strings.Trim(strings.TrimSpace(string(body.ID)), `"`); id != "" && id != "null" {
		return "telegram:" + id
	}
	return ""
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}
