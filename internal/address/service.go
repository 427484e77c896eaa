package address

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/maps"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

const cacheScope = "geocode"

// Service turns free-form address text into coordinates.
type Service interface {
	Locate(ctx context.Context, text string) (Location, error)
}

type Location struct {
	PlaceID          string       `json:"place_id"`
	FormattedAddress string       `json:"formatted_address"`
	Coordinates      types.LatLng `json:"coordinates"`
}

type geocoder interface {
	Geocode(ctx context.Context, address string) (*maps.GeocodeResult, error)
}

// cache is satisfied by *redis.Client.
type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

type ServiceParams struct {
	Geocoder geocoder
	Cache    cache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

type service struct {
	maps  geocoder
	cache cache
	ttl   time.Duration
	logg  *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Geocoder == nil {
		return nil, errors.New(errors.CodeDependency, "geocoder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{maps: params.Geocoder, cache: params.Cache, ttl: ttl, logg: logg}, nil
}

// Locate consults the cache first. Cache failures are logged and bypassed.
func (s *service) Locate(ctx context.Context, text string) (Location, error) {
	normalized := normalize(text)
	if normalized == "" {
		return Location{}, errors.New(errors.CodeValidation, "address is required")
	}

	key := ""
	if s.cache != nil {
		key = s.cache.CacheKey(cacheScope, digest(normalized))
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var loc Location
			if err := json.Unmarshal([]byte(raw), &loc); err == nil {
				return loc, nil
			}
		}
	}

	result, err := s.maps.Geocode(ctx, text)
	if err != nil {
		return Location{}, err
	}
	if result == nil {
		return Location{}, errors.New(errors.CodeNotFound, "address not found")
	}
	loc := Location{
		PlaceID:          result.PlaceID,
		FormattedAddress: result.FormattedAddress,
		Coordinates:      result.Location,
	}

	if key != "" {
		if payload, err := json.Marshal(loc); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "geocode cache write failed")
			}
		}
	}
	return loc, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func digest(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}
