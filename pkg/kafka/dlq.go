package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQSuffix is appended to a topic to name its dead-letter topic.
const DLQSuffix = ".dlq"

// DLQPayload captures a record that could not be published so it can be
// replayed later.
type DLQPayload struct {
	Topic       string            `json:"topic"`
	Timestamp   time.Time         `json:"timestamp"`
	KeyBase64   string            `json:"key_base64,omitempty"`
	ValueBase64 string            `json:"value_base64"`
	Headers     map[string]string `json:"headers,omitempty"`
	Error       string            `json:"error"`
	Source      string            `json:"source"`
}

// EncodeDLQMessage serializes a failed record into a DLQ-safe payload.
func EncodeDLQMessage(topic string, key, value []byte, headers map[string]string, err error, source string, at time.Time) ([]byte, error) {
	payload := DLQPayload{
		Topic:       topic,
		Timestamp:   at,
		ValueBase64: base64.StdEncoding.EncodeToString(value),
		Headers:     headers,
		Source:      source,
	}
	if len(key) > 0 {
		payload.KeyBase64 = base64.StdEncoding.EncodeToString(key)
	}
	if err != nil {
		payload.Error = err.Error()
	}

	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", marshalErr)
	}
	return b, nil
}
