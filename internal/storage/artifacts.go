package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// ArtifactStore persists encoded representations under content-addressed
// keys. A miss returns ok=false and a nil error.
type ArtifactStore interface {
	Get(key string) (data []byte, ok bool, err error)
	Put(key string, data []byte) error
	Close() error
}

// OpenArtifactStore opens the backend named by cfg. A relative badger path
// is resolved against basePath.
func OpenArtifactStore(cfg models.StorageConfig, basePath string, logger *zap.Logger) (ArtifactStore, error) {
	switch cfg.Artifacts {
	case models.ArtifactsBadger:
		p := cfg.BadgerPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(basePath, p)
		}
		return NewBadgerArtifacts(p, logger)
	case models.ArtifactsMemory:
		return NewMemoryArtifacts(), nil
	case models.ArtifactsNone, "":
		return noArtifacts{}, nil
	default:
		return nil, fmt.Errorf("unknown artifact store %q", cfg.Artifacts)
	}
}

type badgerArtifacts struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerArtifacts opens a badger database at path. An empty path opens
// an in-memory database.
func NewBadgerArtifacts(path string, logger *zap.Logger) (ArtifactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating artifact directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	return &badgerArtifacts{db: db, logger: logger}, nil
}

func (s *badgerArtifacts) Get(key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, true, nil
}

func (s *badgerArtifacts) Put(key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing artifact %s: %w", key, err)
	}
	return nil
}

// Close runs one value log GC pass and closes the database.
func (s *badgerArtifacts) Close() error {
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		s.logger.Debug("artifact value log gc", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing artifact store: %w", err)
	}
	return nil
}

// badgerLogger routes badger's internal logging through zap. Badger's info
// output is chatty, so it is demoted to debug.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

type memoryArtifacts struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryArtifacts creates an ArtifactStore that lives for the process.
func NewMemoryArtifacts() ArtifactStore {
	return &memoryArtifacts{data: map[string][]byte{}}
}

func (s *memoryArtifacts) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memoryArtifacts) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryArtifacts) Close() error { return nil }

type noArtifacts struct{}

func (noArtifacts) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (noArtifacts) Put(string, []byte) error         { return nil }
func (noArtifacts) Close() error                     { return nil }
