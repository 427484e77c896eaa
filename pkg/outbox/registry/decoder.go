package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry turns consumed payloads back into typed events. It is
// read-only once built and safe for concurrent use.
type DecoderRegistry struct {
	decoders map[decoderKey]func() any
}

// NewDefaultDecoderRegistry knows every version in the event catalog.
func NewDefaultDecoderRegistry() *DecoderRegistry {
	r := &DecoderRegistry{decoders: make(map[decoderKey]func() any, len(catalog))}
	for _, s := range catalog {
		r.decoders[decoderKey{s.eventType, s.version}] = s.newPayload
	}
	return r
}

// Decode unmarshals payload into the registered type and returns a pointer
// to it. Version 0 is read as 1, the version of envelopes that predate the
// field.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	newPayload, ok := r.decoders[decoderKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	target := newPayload()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("%s v%d: %w", eventType, version, err)
	}
	return target, nil
}
