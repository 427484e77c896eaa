package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

func queryError(key, msg string, extra ...any) error {
	details := map[string]any{"field": key}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i].(string)] = extra[i+1]
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter "+key+" "+msg).WithDetails(details)
}

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt returns def when key is absent and rejects values outside
// [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "must be a whole number")
	}
	if n < min || n > max {
		return 0, queryError(key, "is out of range", "min", min, "max", max)
	}
	return n, nil
}

func ParseQueryBool(r *http.Request, key string) (bool, error) {
	switch strings.ToLower(queryParam(r, key)) {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	}
	return false, queryError(key, "must be true or false")
}

// ParseQueryUUID returns nil when key is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, queryError(key, "must be a uuid")
	}
	return &id, nil
}

// ParseQueryTime accepts RFC3339 or YYYY-MM-DD and returns UTC, or nil when
// key is absent.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, queryError(key, "must be an RFC3339 timestamp or YYYY-MM-DD date")
}

// ParseQueryList splits a comma separated value and parses each entry,
// e.g. ?status=pending,preparing.
func ParseQueryList[T any](r *http.Request, key string, parse func(string) (T, error)) ([]T, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return nil, nil
	}
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, queryError(key, "has an unknown value", "value", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParsePage reads ?limit= and ?cursor=. The cursor is decoded by the service.
func ParsePage(r *http.Request, defaultLimit int) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", defaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: queryParam(r, "cursor")}, nil
}
