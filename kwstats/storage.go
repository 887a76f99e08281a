package kwstats

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/dgraph-io/ristretto/v2"
)

// Storage persists the statistics store blobs.
type Storage interface {
	// Load returns the blob of the key, false if the key is not present.
	Load(key string) ([]byte, bool, error)
	// SaveAll writes every entry in a single atomic update, either all entries are stored or none.
	SaveAll(entries map[string][]byte) error
	// ListKeysPrefix returns the keys beginning with prefix, sorted.
	ListKeysPrefix(prefix string) ([]string, error)
	Close() error
}

type memStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStorage returns an in-memory Storage, content is lost when the value is discarded.
func NewMemStorage() Storage {
	return &memStorage{data: make(map[string][]byte)}
}

func (m *memStorage) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(blob), true, nil
}

func (m *memStorage) SaveAll(entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, blob := range entries {
		m.data[key] = append([]byte{}, blob...)
	}
	return nil
}

func (m *memStorage) ListKeysPrefix(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *memStorage) Close() error {
	return nil
}

type badgerStorage struct {
	db          *badger.DB
	logMetrics  bool
	closeOnce   sync.Once
	closeResult error
}

// NewBadgerStorage opens (or creates) a Badger backed Storage in dir. With logMetrics the block and index
// cache metrics are logged when the storage is closed.
func NewBadgerStorage(dir string, maxMemMB int, logMetrics bool) (Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}

	clamp := func(val, lo, high int64) int64 {
		return min(max(val, lo), high)
	}
	memTableSize := clamp(int64(maxMemMB/4), 8, 64) << 20
	opts := badger.DefaultOptions(dir).
		WithCompression(options.ZSTD).
		WithZSTDCompressionLevel(3).
		WithNumMemtables(2).
		WithMemTableSize(memTableSize).
		WithBaseTableSize(memTableSize).
		WithBlockCacheSize(clamp(int64(maxMemMB/8), 2, 64) << 20). // required when compression is enabled
		WithIndexCacheSize(clamp(int64(maxMemMB/4), 4, 64) << 20).
		WithValueLogFileSize(64 << 20).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(logMetrics)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage db failed: %w", err)
	}
	return &badgerStorage{db: db, logMetrics: logMetrics}, nil
}

func (b *badgerStorage) Load(key string) ([]byte, bool, error) {
	var blob []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (b *badgerStorage) SaveAll(entries map[string][]byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for key, blob := range entries {
			if err := txn.Set([]byte(key), blob); err != nil {
				return fmt.Errorf("set %q failed: %w", key, err)
			}
		}
		return nil
	})
}

func (b *badgerStorage) ListKeysPrefix(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *badgerStorage) Close() error {
	b.closeOnce.Do(func() {
		if b.logMetrics {
			logCacheMetrics("block", b.db.BlockCacheMetrics())
			logCacheMetrics("index", b.db.IndexCacheMetrics())
		}
		b.closeResult = b.db.Close()
	})
	return b.closeResult
}

func logCacheMetrics(name string, metrics *ristretto.Metrics) {
	if metrics == nil {
		return
	}
	log.Printf("Statistics store %s cache: hits=%d misses=%d ratio=%.2f",
		name, metrics.Hits(), metrics.Misses(), metrics.Ratio())
}
