package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by brokers after Close
var ErrClosed = errors.New("broker closed")

// Broker is the cross-page messaging collaborator. Publish is
// fire-and-forget: the payload is stored under the channel, broadcast to
// subscribers and revoked shortly after. There is no acknowledgement.
type Broker interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan Delivery, error)
	Latest(ctx context.Context, channel string) ([]byte, bool, error)
	Close() error
}

// Delivery is one payload received on a subscribed channel
type Delivery struct {
	Channel string
	Payload []byte
}

// Message is the record a target handler sends to the browser pages.
// Fields are flattened next to type and content on the wire.
type Message struct {
	ID        string
	Type      string
	Content   string
	Fields    map[string]string
	Timestamp time.Time
}

// NewMessage creates a message with a fresh ID and the current time
func NewMessage(msgType, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// With returns a copy of the message carrying an extra field
func (m Message) With(key, value string) Message {
	fields := make(map[string]string, len(m.Fields)+1)
	for k, v := range m.Fields {
		fields[k] = v
	}
	fields[key] = value
	m.Fields = fields
	return m
}

var reservedKeys = map[string]bool{"id": true, "type": true, "content": true, "timestamp": true}

// MarshalJSON flattens Fields into the top-level object. Extra fields never
// override the reserved keys.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Fields)+4)
	for k, v := range m.Fields {
		if reservedKeys[k] {
			continue
		}
		out[k] = v
	}
	out["id"] = m.ID
	out["type"] = m.Type
	out["content"] = m.Content
	out["timestamp"] = m.Timestamp.UnixMilli()
	return json.Marshal(out)
}

// UnmarshalJSON restores a message produced by MarshalJSON
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Message{}
	for k, v := range raw {
		switch k {
		case "id":
			m.ID, _ = v.(string)
		case "type":
			m.Type, _ = v.(string)
		case "content":
			m.Content, _ = v.(string)
		case "timestamp":
			if ms, ok := v.(float64); ok {
				m.Timestamp = time.UnixMilli(int64(ms))
			}
		default:
			s, ok := v.(string)
			if !ok {
				continue
			}
			if m.Fields == nil {
				m.Fields = make(map[string]string)
			}
			m.Fields[k] = s
		}
	}
	return nil
}

func encode(payload interface{}) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	return json.Marshal(payload)
}
