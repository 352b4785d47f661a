// Package consumer reads outbox events back from Kafka and audits them.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded outbox event together with its Kafka coordinates.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	EventID       string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

type Option func(*Processor)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// Processor fetches records, decodes them and hands them to a Handler.
// Offsets are committed after a successful handle. Undecodable records are
// committed and dropped; handler failures are left uncommitted for redelivery.
type Processor struct {
	reader  Reader
	handler Handler
	logger  zerolog.Logger
}

func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{reader: reader, handler: handler, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled or the reader reports cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		record, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			p.logger.Error().Err(err).Msg("fetch failed")
			continue
		}
		p.process(ctx, record)
	}
	return ctx.Err()
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := Decode(record)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("topic", record.Topic).
			Int("partition", record.Partition).
			Int64("offset", record.Offset).
			Msg("dropping record")
		observe(record.Topic, "", outcomeUndecodable)
		p.commit(ctx, record)
		return
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", msg.EventType).
			Str("event_id", msg.EventID).
			Msg("handler failed")
		observe(msg.Topic, msg.EventType, outcomeHandlerError)
		return
	}

	if p.commit(ctx, record) {
		observe(msg.Topic, msg.EventType, outcomeProcessed)
		if !msg.Timestamp.IsZero() {
			lastProcessed.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
		}
	}
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Error().Err(err).Str("topic", record.Topic).Int64("offset", record.Offset).Msg("commit failed")
		return false
	}
	return true
}
