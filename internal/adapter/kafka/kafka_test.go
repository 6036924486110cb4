package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/config"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	batches [][]kafkago.Message
	err     error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	batch := make([]kafkago.Message, len(msgs))
	copy(batch, msgs)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

var (
	generated = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	jan1      = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func dailyObs(region string, day int, v *float64) domain.Observation {
	start := jan1.AddDate(0, 0, day)
	p := domain.Period{Start: start, End: start.AddDate(0, 0, 1), Granularity: domain.Daily}
	return domain.NewObservation(region, p, v, 48)
}

func testWriter(w messageWriter) *Writer {
	return &Writer{writer: w, runID: "run-1", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage("run-1", generated, dailyObs("Ajra", 0, domain.Float(12.34)))
	require.NoError(t, err)

	assert.Equal(t, []byte("daily|2020-01-01|Ajra"), msg.Key)
	var payload Message
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, "2020-01-01", payload.Period)
	assert.Equal(t, "Ajra", payload.Taluka)
	require.NotNil(t, payload.RainfallMM)
	assert.InDelta(t, 12.3, *payload.RainfallMM, 1e-9)
	assert.Equal(t, "mm", payload.Unit)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, "granularity", msg.Headers[1].Key)
	assert.Equal(t, []byte("daily"), msg.Headers[1].Value)
	assert.Equal(t, "generated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(generated.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeToMessage_MissingIsNull(t *testing.T) {
	msg, err := serializeToMessage("run-1", generated, dailyObs("Ajra", 0, nil))
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"rainfall_mm":null`)
}

func TestMessageKey_Monthly(t *testing.T) {
	p := domain.Period{Start: jan1, End: jan1.AddDate(0, 1, 0), Granularity: domain.Monthly}
	assert.Equal(t, "monthly|2020-01|Karvir", MessageKey(domain.NewObservation("Karvir", p, nil, 0)))
}

func TestWriter_LoadDatasetBatches(t *testing.T) {
	var obs []domain.Observation
	for i := range batchSize + 3 {
		obs = append(obs, dailyObs("Ajra", i, domain.Float(1)))
	}
	rec := &recordingWriter{}

	err := testWriter(rec).LoadDataset(context.Background(), domain.Dataset{
		Granularity: domain.Daily, Observations: obs, GeneratedAt: generated,
	})
	require.NoError(t, err)

	require.Len(t, rec.batches, 2)
	assert.Len(t, rec.batches[0], batchSize)
	assert.Len(t, rec.batches[1], 3)
	assert.Equal(t, []byte("daily|2020-01-01|Ajra"), rec.batches[0][0].Key)
}

func TestWriter_LoadDatasetError(t *testing.T) {
	rec := &recordingWriter{err: errors.New("broker down")}
	err := testWriter(rec).LoadDataset(context.Background(), domain.Dataset{
		Granularity:  domain.Daily,
		Observations: []domain.Observation{dailyObs("Ajra", 0, nil)},
	})
	require.ErrorContains(t, err, "broker down")
}

func TestNewWriter(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "basin-rainfall"}, "run-1", slog.Default())
	assert.Equal(t, "kafka", w.Name())
	kw, ok := w.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "basin-rainfall", kw.Topic)
	require.NoError(t, w.Close())
}
