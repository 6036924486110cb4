package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/config"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const batchSize = 500

// messageWriter is the subset of *kafkago.Writer the loader needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes one message per observation to a Kafka topic.
// It implements pipeline.DatasetLoader.
type Writer struct {
	writer messageWriter
	runID  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, runID string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, runID: runID, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// LoadDataset publishes every row of the dataset, missing values included,
// in batches.
func (w *Writer) LoadDataset(ctx context.Context, ds domain.Dataset) error {
	msgs := make([]kafkago.Message, 0, min(batchSize, ds.Len()))
	sent := 0
	for _, obs := range ds.Observations {
		msg, err := serializeToMessage(w.runID, ds.GeneratedAt, obs)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == batchSize {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish %s batch at row %d: %w", ds.Granularity, sent, err)
			}
			sent += len(msgs)
			msgs = msgs[:0]
		}
	}
	if len(msgs) > 0 {
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %s batch at row %d: %w", ds.Granularity, sent, err)
		}
		sent += len(msgs)
	}
	w.logger.Info("dataset published", "granularity", ds.Granularity, "messages", sent)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Message is the JSON payload of one observation.
type Message struct {
	RunID       string             `json:"run_id"`
	Granularity domain.Granularity `json:"granularity"`
	Period      string             `json:"period"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Taluka      string             `json:"taluka"`
	RainfallMM  *float64           `json:"rainfall_mm"`
	Unit        string             `json:"unit"`
	Samples     int                `json:"samples"`
}

// MessageKey identifies one row; re-publishing a run overwrites it on
// compacted topics.
func MessageKey(obs domain.Observation) string {
	return string(obs.Period.Granularity) + "|" + obs.Period.Label() + "|" + obs.Region
}

// serializeToMessage marshals an Observation into a Kafka message.
func serializeToMessage(runID string, generatedAt time.Time, obs domain.Observation) (kafkago.Message, error) {
	var value *float64
	if obs.Value != nil {
		value = domain.Float(domain.Round1(*obs.Value))
	}
	data, err := json.Marshal(Message{
		RunID:       runID,
		Granularity: obs.Period.Granularity,
		Period:      obs.Period.Label(),
		PeriodStart: obs.Period.Start,
		PeriodEnd:   obs.Period.End,
		Taluka:      obs.Region,
		RainfallMM:  value,
		Unit:        obs.Unit,
		Samples:     obs.Samples,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(obs)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "granularity", Value: []byte(obs.Period.Granularity)},
			{Key: "generated_at", Value: []byte(generatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
