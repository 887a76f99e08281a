package kwstats

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mtraver/base91"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	keywordKeyPrefix = "kw;"
	reportKeyPrefix  = "report;"
)

// storedRecord is the persisted form of a KeywordRecord.
type storedRecord struct {
	Count  int    `msgpack:"c"`
	Tokens []byte `msgpack:"t"` // concatenated CallerTokens
}

// StatsStore accumulates keyword statistics across runs. Each report is identified by a content
// fingerprint so ingesting the same report twice does not double count.
type StatsStore struct {
	storage Storage
}

// NewStatsStore wraps the storage as a StatsStore.
func NewStatsStore(s Storage) *StatsStore {
	return &StatsStore{storage: s}
}

// OpenStatsStore opens the badger backed store in dir.
func OpenStatsStore(dir string, cacheMB int, logMetrics bool) (*StatsStore, error) {
	s, err := NewBadgerStorage(dir, cacheMB, logMetrics)
	if err != nil {
		return nil, err
	}
	return NewStatsStore(s), nil
}

func keywordKey(keyword string) string {
	return keywordKeyPrefix + keyword
}

func fingerprintKey(fingerprint uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], fingerprint)
	return reportKeyPrefix + base91.StdEncoding.EncodeToString(b[:])
}

// Ingested reports if a report with the fingerprint was already added.
func (s *StatsStore) Ingested(fingerprint uint64) (bool, error) {
	_, ok, err := s.storage.Load(fingerprintKey(fingerprint))
	return ok, err
}

// Ingest merges the counter into the store. It returns false without changes if the fingerprint was
// already ingested. The merged records and the fingerprint are committed together, a failed ingest
// leaves the store unchanged and can be repeated.
func (s *StatsStore) Ingest(fingerprint uint64, source string, c *Counter) (bool, error) {
	if ok, err := s.Ingested(fingerprint); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	entries := make(map[string][]byte, len(c.records)+1)
	for keyword, r := range c.records {
		stored, err := s.loadRecord(keyword)
		if err != nil {
			return false, err
		} else if stored == nil {
			stored = &KeywordRecord{Callers: make(map[CallerToken]struct{}, len(r.Callers))}
		}
		stored.Count += r.Count
		for token := range r.Callers {
			stored.Callers[token] = struct{}{}
		}
		blob, err := encodeRecord(stored)
		if err != nil {
			return false, fmt.Errorf("encode keyword %q failed: %w", keyword, err)
		}
		entries[keywordKey(keyword)] = blob
	}
	entries[fingerprintKey(fingerprint)] = []byte(source)

	if err := s.storage.SaveAll(entries); err != nil {
		return false, fmt.Errorf("save %s failed: %w", source, err)
	}
	return true, nil
}

// Counter loads every stored keyword record.
func (s *StatsStore) Counter() (*Counter, error) {
	keys, err := s.storage.ListKeysPrefix(keywordKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list stored keywords failed: %w", err)
	}
	c := NewCounter()
	for _, key := range keys {
		keyword := strings.TrimPrefix(key, keywordKeyPrefix)
		r, err := s.loadRecord(keyword)
		if err != nil {
			return nil, err
		} else if r != nil {
			c.records[keyword] = r
		}
	}
	return c, nil
}

// ReportCount returns the number of ingested reports.
func (s *StatsStore) ReportCount() (int, error) {
	keys, err := s.storage.ListKeysPrefix(reportKeyPrefix)
	return len(keys), err
}

// Close releases the underlying storage.
func (s *StatsStore) Close() error {
	return s.storage.Close()
}

func (s *StatsStore) loadRecord(keyword string) (*KeywordRecord, error) {
	blob, ok, err := s.storage.Load(keywordKey(keyword))
	if err != nil {
		return nil, fmt.Errorf("load keyword %q failed: %w", keyword, err)
	} else if !ok {
		return nil, nil
	}
	var stored storedRecord
	if err := msgpack.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("decode keyword %q failed: %w", keyword, err)
	} else if len(stored.Tokens)%CallerTokenSize != 0 {
		return nil, fmt.Errorf("keyword %q has invalid token data size: %d", keyword, len(stored.Tokens))
	}
	r := &KeywordRecord{Count: stored.Count, Callers: make(map[CallerToken]struct{}, len(stored.Tokens)/CallerTokenSize)}
	for i := 0; i < len(stored.Tokens); i += CallerTokenSize {
		var token CallerToken
		copy(token[:], stored.Tokens[i:])
		r.Callers[token] = struct{}{}
	}
	return r, nil
}

func encodeRecord(r *KeywordRecord) ([]byte, error) {
	tokens := make([]byte, 0, len(r.Callers)*CallerTokenSize)
	for token := range r.Callers {
		tokens = append(tokens, token[:]...)
	}
	return msgpack.Marshal(storedRecord{Count: r.Count, Tokens: tokens})
}
