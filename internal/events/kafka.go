package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/akave-ai/browserlog/internal/config"
	"github.com/akave-ai/browserlog/internal/model"
)

const (
	batchTimeout = 100 * time.Millisecond
	writeTimeout = 5 * time.Second
)

// EntryAccepted is the message written for every stored entry. Binary
// payloads are not copied; consumers read them back by id.
type EntryAccepted struct {
	ID           uuid.UUID `json:"id"`
	ReceivedAt   time.Time `json:"received_at"`
	Employee     string    `json:"employee"`
	IPAddress    string    `json:"ip_address"`
	URL          string    `json:"url"`
	Method       string    `json:"method"`
	Type         string    `json:"type"`
	Initiator    string    `json:"initiator"`
	StatusCode   string    `json:"status_code"`
	ResponseTime string    `json:"response_time"`
	HasHTML      bool      `json:"has_html"`
}

// NewEntryAccepted projects e into its event form.
func NewEntryAccepted(e *model.LogEntry) EntryAccepted {
	return EntryAccepted{
		ID:           e.ID,
		ReceivedAt:   e.ReceivedAt.UTC(),
		Employee:     e.Employee,
		IPAddress:    e.IPAddress,
		URL:          e.URL,
		Method:       e.Method,
		Type:         e.Type,
		Initiator:    e.Initiator,
		StatusCode:   e.StatusCode,
		ResponseTime: e.ResponseTime,
		HasHTML:      e.HasHTML(),
	}
}

// Message encodes the event for e, keyed by entry id.
func Message(e *model.LogEntry) (kafka.Message, error) {
	value, err := json.Marshal(NewEntryAccepted(e))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode entry event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.ID.String()),
		Value: value,
	}, nil
}

// KafkaPublisher writes accepted entries to a Kafka topic. Writes are async;
// delivery failures surface through the writer's error logger.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(cfg *config.EventsConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka publisher needs brokers and a topic")
	}
	log := logger.With().Str("component", "events").Str("topic", cfg.Topic).Logger()

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf(msg, args...)
		}),
	}
	log.Info().Strs("brokers", cfg.Brokers).Msg("kafka publisher created")

	return &KafkaPublisher{writer: w, logger: log}, nil
}

// Publish queues the event for e.
func (p *KafkaPublisher) Publish(ctx context.Context, e *model.LogEntry) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write entry event: %w", err)
	}
	return nil
}

// Close flushes queued messages.
func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("closing kafka publisher")
	return p.writer.Close()
}
