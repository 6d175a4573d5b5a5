package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/outbox/payloads"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	Actor string `json:"actor"`
	Role  string `json:"role,omitempty"`
}

// SystemActor marks events produced by background jobs.
var SystemActor = &ActorRef{Actor: "system", Role: "system"}

// PayloadEnvelope is the JSON stored in outbox_events.payload. The shape of
// Data is fixed by the event type and Version.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Decoder turns an envelope's data into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// As decodes data into T.
func As[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps an event type and envelope version to its Decoder.
// Register everything before sharing it; lookups are read-only.
type DecoderRegistry struct {
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]Decoder{}}
}

// DefaultDecoders knows version 1 of every event this module emits.
func DefaultDecoders() *DecoderRegistry {
	return NewDecoderRegistry().
		Register(enums.EventOrderCreated, 1, As[payloads.OrderCreatedEvent]()).
		Register(enums.EventOrderStatusChanged, 1, As[payloads.OrderStatusChangedEvent]()).
		Register(enums.EventConsignmentGenerated, 1, As[payloads.ConsignmentGeneratedEvent]()).
		Register(enums.EventSubscriptionRenewed, 1, As[payloads.SubscriptionRenewedEvent]()).
		Register(enums.EventSubscriptionCompleted, 1, As[payloads.SubscriptionCompletedEvent]())
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) *DecoderRegistry {
	r.decoders[decoderKey{eventType, version}] = decode
	return r
}

// Decode fails with VALIDATION_ERROR for unknown versions and malformed data;
// retrying either cannot help.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	decode, ok := r.decoders[decoderKey{eventType, version}]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "no decoder for %s v%d", eventType, version)
	}
	out, err := decode(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(eventType))
	}
	return out, nil
}

// DecodeRow unwraps a stored payload and decodes its data.
func (r *DecoderRegistry) DecodeRow(eventType enums.OutboxEventType, raw json.RawMessage) (PayloadEnvelope, any, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode envelope")
	}
	data, err := r.Decode(eventType, env.Version, env.Data)
	return env, data, err
}
