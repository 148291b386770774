package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// header keys
const (
	HeaderEventType     = "x-event-type"
	HeaderEventVersion  = "x-event-version"
	HeaderCorrelationID = "x-correlation-id"
	HeaderReplyTopic    = "x-reply-topic"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(producer, eventType, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// replyEnvelope is what a responder publishes back on the reply topic.
type replyEnvelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *apperr.Wire    `json:"error,omitempty"`
}

// MustMarshal is for values that always encode (envelopes, typed payloads).
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope or request payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
