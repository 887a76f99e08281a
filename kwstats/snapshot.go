package kwstats

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

// structs and code below encode a Counter with a de-duplicated caller token dictionary, a test calling many
// keywords shares a single dictionary entry

type encKeywordRecord struct {
	C  int   `msgpack:"c"`            // call count
	Ti []int `msgpack:"ti,omitempty"` // -> token dictionary
}

type encCounter struct {
	V       int                         `msgpack:"v"`
	Records map[string]encKeywordRecord `msgpack:"r"`
	Tokens  []byte                      `msgpack:"t,omitempty"` // concatenated CallerTokens
}

func (c *Counter) MarshalMsgpack() ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	tokenIndex := make(map[CallerToken]int)
	var tokens []byte
	records := make(map[string]encKeywordRecord, len(c.records))
	for _, keyword := range c.Keywords() { // sorted for a stable dictionary order
		r := c.records[keyword]
		callers := make([]CallerToken, 0, len(r.Callers))
		for token := range r.Callers {
			callers = append(callers, token)
		}
		slices.SortFunc(callers, func(a, b CallerToken) int {
			return bytes.Compare(a[:], b[:])
		})

		indexes := make([]int, len(callers))
		for i, token := range callers {
			pos, ok := tokenIndex[token]
			if !ok {
				pos = len(tokenIndex)
				tokenIndex[token] = pos
				tokens = append(tokens, token[:]...)
			}
			indexes[i] = pos
		}
		records[keyword] = encKeywordRecord{C: r.Count, Ti: indexes}
	}

	var buf bytes.Buffer
	enc.Reset(&buf)
	err := enc.Encode(encCounter{
		V:       snapshotVersion,
		Records: records,
		Tokens:  tokens,
	})
	return buf.Bytes(), err
}

func (c *Counter) UnmarshalMsgpack(data []byte) error {
	var enc encCounter
	if err := msgpack.Unmarshal(data, &enc); err != nil {
		return err
	} else if enc.V != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", enc.V)
	} else if len(enc.Tokens)%CallerTokenSize != 0 {
		return fmt.Errorf("invalid token dictionary size: %d", len(enc.Tokens))
	}
	tokenCount := len(enc.Tokens) / CallerTokenSize

	c.records = make(map[string]*KeywordRecord, len(enc.Records))
	for keyword, er := range enc.Records {
		if len(er.Ti) > er.C {
			return fmt.Errorf("keyword %q has %d callers but only %d calls", keyword, len(er.Ti), er.C)
		}
		r := &KeywordRecord{Count: er.C, Callers: make(map[CallerToken]struct{}, len(er.Ti))}
		for _, idx := range er.Ti {
			if idx < 0 || idx >= tokenCount {
				return fmt.Errorf("invalid encoded token index: %d", idx)
			}
			var token CallerToken
			copy(token[:], enc.Tokens[idx*CallerTokenSize:])
			r.Callers[token] = struct{}{}
		}
		c.records[keyword] = r
	}
	return nil
}

// WriteSnapshot writes the counter, including anonymized caller tokens, as zstd compressed msgpack.
func WriteSnapshot(path string, c *Counter) error {
	encoded, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := writeFileReplace(path, ZstdCompress(nil, encoded)); err != nil {
		return fmt.Errorf("write snapshot file failed: %w", err)
	}
	return nil
}

// ReadSnapshot reads a counter written by WriteSnapshot.
func ReadSnapshot(path string) (*Counter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot failed: %w", err)
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot decodes the content of a snapshot file.
func DecodeSnapshot(data []byte) (*Counter, error) {
	decoded, err := ZstdDecompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot failed: %w", err)
	}
	c := NewCounter()
	if err := msgpack.Unmarshal(decoded, c); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return c, nil
}
