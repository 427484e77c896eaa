package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/restaurant-backend/api/responses"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	shortReplayWindow = 24 * time.Hour
	longReplayWindow  = 7 * 24 * time.Hour
	inFlightLease     = time.Minute
	maxKeyLength      = 128
)

// ReplayStore is satisfied by *redis.Client.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Money-moving routes keep their replays for a week, the rest for a day.
var replayWindows = []struct {
	method   string
	template string
	window   time.Duration
}{
	{http.MethodPost, "/api/orders", longReplayWindow},
	{http.MethodPost, "/api/orders/{orderId}/cancel", longReplayWindow},
	{http.MethodPost, "/api/payment/charge", longReplayWindow},
	{http.MethodPost, "/api/admin/payments/{paymentId}/refund", longReplayWindow},
	{http.MethodPost, "/api/orders/{orderId}/rating", shortReplayWindow},
	{http.MethodPost, "/api/payment/session", shortReplayWindow},
	{http.MethodPost, "/api/delivery/assign", shortReplayWindow},
	{http.MethodPost, "/api/notifications/{notificationId}/read", shortReplayWindow},
	{http.MethodPost, "/api/notifications/read-all", shortReplayWindow},
	{http.MethodPost, "/api/admin/delivery/agents", shortReplayWindow},
}

// savedResponse is what a replay writes back. A record without a Status is
// the in-flight marker of a request that has not finished yet.
type savedResponse struct {
	Fingerprint string `json:"fp"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s savedResponse) pending() bool { return s.Status == 0 }

// Idempotency makes the listed mutations safe to retry. The first request
// with a key reserves it; concurrent duplicates get 409 until it finishes,
// later duplicates get the saved response, and a different body under the
// same key is rejected. 5xx answers release the key so the client can retry.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			window, guarded := replayWindow(r.Method, requestRoute(r))
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := fingerprint(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(UserIDFromContext(ctx), clientKey)

			marker, _ := json.Marshal(savedResponse{Fingerprint: fp})
			reserved, err := store.SetNX(ctx, key, string(marker), inFlightLease)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(ctx, store, key, fp, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// detached so a client hang-up still settles the key
			settleCtx := context.WithoutCancel(ctx)
			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if err := store.Del(settleCtx, key); err != nil && logg != nil {
					logg.Error(settleCtx, "release idempotency key", err)
				}
				return
			}
			saved, _ := json.Marshal(savedResponse{
				Fingerprint: fp,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(settleCtx, key, string(saved), window); err != nil && logg != nil {
				logg.Error(settleCtx, "save idempotent response", err)
			}
		})
	}
}

func replay(ctx context.Context, store ReplayStore, key, fp string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the first attempt failed and released the key between our calls
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}
	var saved savedResponse
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotent response"))
		return
	}
	if saved.Fingerprint != fp {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if saved.pending() {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
		return
	}
	if saved.ContentType != "" {
		w.Header().Set("Content-Type", saved.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(saved.Status)
	_, _ = w.Write(saved.Body)
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// requestRoute prefers chi's matched pattern. Middleware on a sub-router runs
// before routing finishes and only sees "/api/*", so fall back to the path.
func requestRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "*") {
			return p
		}
	}
	return r.URL.Path
}

func replayWindow(method, route string) (time.Duration, bool) {
	if route == "" {
		return 0, false
	}
	for _, rw := range replayWindows {
		if rw.method == method && matchTemplate(rw.template, route) {
			return rw.window, true
		}
	}
	return 0, false
}

// matchTemplate compares path segments, letting "{name}" stand for any one
// non-empty segment. Trailing slashes are ignored.
func matchTemplate(template, route string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(route, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
