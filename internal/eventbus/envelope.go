package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the standard JSON wrapper for every message on the bus.
type Envelope struct {
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope for the given event type and payload.
func NewEnvelope(eventType, source string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &Envelope{
		EventType: eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Encode serialises the envelope to its wire form.
func (e *Envelope) Encode() ([]byte, error) {
	if e.EventType == "" {
		return nil, fmt.Errorf("envelope missing event_type")
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses the wire form back into an Envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("envelope missing event_type")
	}
	return &env, nil
}

// EventProcessingFailed is the event type of dead-letter envelopes.
const EventProcessingFailed = "processing_failed"

// DeadLetterData is the payload of a processing_failed envelope: the envelope
// the handler could not process plus the handler error.
type DeadLetterData struct {
	Topic    string    `json:"topic"`
	Error    string    `json:"error"`
	Original *Envelope `json:"original"`
}

// newDeadLetterEnvelope wraps a failed envelope in a fresh processing_failed
// one, keeping the original correlation id so the failure stays traceable.
func newDeadLetterEnvelope(topic, source string, failed *Envelope, handlerErr error) (*Envelope, error) {
	env, err := NewEnvelope(EventProcessingFailed, source, DeadLetterData{
		Topic:    topic,
		Error:    handlerErr.Error(),
		Original: failed,
	})
	if err != nil {
		return nil, err
	}
	env.CorrelationID = failed.CorrelationID
	return env, nil
}

// DecodeData unmarshals the envelope payload into dst.
func (e *Envelope) DecodeData(dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode %s data: %w", e.EventType, err)
	}
	return nil
}
