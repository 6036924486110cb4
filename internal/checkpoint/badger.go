// Package checkpoint persists completed extraction chunks in Badger so an
// interrupted run resumes where it stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

// Store implements pipeline.Checkpoint. Chunks are JSON encoded and zstd
// compressed under run/<run>/<granularity>/<chunk>.
type Store struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
}

// Open opens (or creates) a checkpoint database in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions(dir), logger)
}

// OpenInMemory opens a checkpoint database that lives only as long as the
// process.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &Store{db: db, encoder: encoder, decoder: decoder, logger: logger}, nil
}

func runPrefix(run string) []byte {
	return []byte("run/" + run + "/")
}

func chunkKey(run string, g domain.Granularity, chunk int) []byte {
	return fmt.Appendf(runPrefix(run), "%s/%06d", g, chunk)
}

func lastKey(run string, g domain.Granularity) []byte {
	return fmt.Appendf(runPrefix(run), "%s/last", g)
}

// LoadChunk returns the stored observations of a chunk, or false when the
// chunk was never completed.
func (s *Store) LoadChunk(_ context.Context, run string, g domain.Granularity, chunk int) ([]domain.Observation, bool, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(run, g, chunk))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read chunk %d: %w", chunk, err)
	}

	raw, err := s.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress chunk %d: %w", chunk, err)
	}
	var obs []domain.Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, false, fmt.Errorf("decode chunk %d: %w", chunk, err)
	}
	return obs, true, nil
}

// SaveChunk stores a completed chunk and advances the last completed chunk
// index of the granularity.
func (s *Store) SaveChunk(_ context.Context, run string, g domain.Granularity, chunk int, obs []domain.Observation) error {
	raw, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", chunk, err)
	}
	payload := s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(chunkKey(run, g, chunk), payload); err != nil {
			return err
		}
		last, ok, err := getInt(txn, lastKey(run, g))
		if err != nil {
			return err
		}
		if ok && last >= chunk {
			return nil
		}
		return txn.Set(lastKey(run, g), []byte(strconv.Itoa(chunk)))
	})
	if err != nil {
		return fmt.Errorf("write chunk %d: %w", chunk, err)
	}
	s.logger.Debug("checkpoint saved", "run", run, "granularity", g, "chunk", chunk, "rows", len(obs), "bytes", len(payload))
	return nil
}

// LastChunk returns the highest completed chunk index of a granularity.
func (s *Store) LastChunk(run string, g domain.Granularity) (int, bool, error) {
	var (
		last int
		ok   bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		last, ok, err = getInt(txn, lastKey(run, g))
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("read progress: %w", err)
	}
	return last, ok, nil
}

func getInt(txn *badger.Txn, key []byte) (int, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, false, fmt.Errorf("corrupt progress value %q: %w", v, err)
	}
	return n, true, nil
}

// Clear deletes every chunk of a run.
func (s *Store) Clear(_ context.Context, run string) error {
	if err := s.db.DropPrefix(runPrefix(run)); err != nil {
		return fmt.Errorf("clear run %s: %w", run, err)
	}
	return nil
}

// Close releases the database and codecs.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
