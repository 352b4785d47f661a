package consumer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Nissan15/hackathon/internal/outbox"
)

// errUndecodable marks records that will never decode, however often they
// are redelivered.
var errUndecodable = errors.New("undecodable record")

// Decode unwraps a Confluent-framed record written by the outbox dispatcher.
func Decode(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, fmt.Errorf("%w: %d byte value is shorter than the frame header", errUndecodable, len(record.Value))
	}
	if magic := record.Value[0]; magic != 0 {
		return Message{}, fmt.Errorf("%w: magic byte %d", errUndecodable, magic)
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers[outbox.HeaderEventType]
	if eventType == "" {
		return Message{}, fmt.Errorf("%w: no %s header", errUndecodable, outbox.HeaderEventType)
	}

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, fmt.Errorf("%w: payload is not JSON", errUndecodable)
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		EventID:       headers[outbox.HeaderEventID],
		SchemaSubject: headers[outbox.HeaderSchemaSubject],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       payload,
	}, nil
}
