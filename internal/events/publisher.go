// Package events publishes catalog changes to kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/entity"
)

const (
	TypeArchived = "report.archived"
	TypeParsed   = "report.parsed"
)

// Event is the JSON message body. The message key is the report id.
type Event struct {
	Type     string          `json:"type"`
	ReportID string          `json:"report_id"`
	Name     string          `json:"report_name"`
	Addr     string          `json:"report_addr"`
	Time     string          `json:"report_time"`
	Machine  string          `json:"report_machine"`
	Fields   json.RawMessage `json:"report_value,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w      MessageWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewKafkaPublisher writes to topic on brokers, balancing by partition load.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return NewPublisher(w, logger)
}

func NewPublisher(w MessageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{w: w, now: time.Now, logger: logger}
}

// Archived publishes one report.archived message per row.
func (p *Publisher) Archived(ctx context.Context, rows []entity.Report) error {
	msgs := make([]kafka.Message, 0, len(rows))
	for _, r := range rows {
		m, err := p.message(TypeArchived, r)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return p.write(ctx, msgs)
}

// Parsed publishes report.parsed with the extracted fields.
func (p *Publisher) Parsed(ctx context.Context, row entity.Report) error {
	m, err := p.message(TypeParsed, row)
	if err != nil {
		return err
	}
	return p.write(ctx, []kafka.Message{m})
}

func (p *Publisher) message(typ string, r entity.Report) (kafka.Message, error) {
	ev := Event{
		Type:     typ,
		ReportID: r.ID.String(),
		Name:     r.Name,
		Addr:     r.Addr,
		Time:     r.Time.Format(constants.ReportTimeLayout),
		Machine:  r.Machine,
		SentAt:   p.now(),
	}
	if typ == TypeParsed {
		ev.Fields = r.Value
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return kafka.Message{Key: []byte(ev.ReportID), Value: b}, nil
}

func (p *Publisher) write(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish events", "count", len(msgs), "error", err)
		return fmt.Errorf("publish events: %w", err)
	}
	p.logger.Debug("events published", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error { return p.w.Close() }
