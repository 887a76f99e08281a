package kwstats

import (
	"slices"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
)

// KeywordRecord holds the usage of one keyword.
type KeywordRecord struct {
	// Count is the total number of invocations.
	Count int
	// Callers is the set of anonymized calling contexts. Its size never exceeds Count.
	Callers map[CallerToken]struct{}
}

// CallerCount returns the number of distinct callers.
func (r *KeywordRecord) CallerCount() int {
	return len(r.Callers)
}

// Counter accumulates keyword usage keyed by keyword name.
type Counter struct {
	records map[string]*KeywordRecord
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{records: make(map[string]*KeywordRecord)}
}

// Add records one invocation of the keyword from the caller.
func (c *Counter) Add(keyword string, caller CallerToken) {
	r, ok := c.records[keyword]
	if !ok {
		r = &KeywordRecord{Callers: make(map[CallerToken]struct{})}
		c.records[keyword] = r
	}
	r.Count++
	r.Callers[caller] = struct{}{}
}

// Merge folds the records of other into this counter. Caller sets are unioned, counts are summed.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	for keyword, o := range other.records {
		r, ok := c.records[keyword]
		if !ok {
			r = &KeywordRecord{Callers: make(map[CallerToken]struct{}, len(o.Callers))}
			c.records[keyword] = r
		}
		r.Count += o.Count
		for token := range o.Callers {
			r.Callers[token] = struct{}{}
		}
	}
}

// Record returns the record of the keyword, or nil if it was never seen.
func (c *Counter) Record(keyword string) *KeywordRecord {
	return c.records[keyword]
}

// Len returns the number of distinct keywords.
func (c *Counter) Len() int {
	return len(c.records)
}

// TotalCalls returns the sum of all invocation counts.
func (c *Counter) TotalCalls() int {
	var total int
	for _, r := range c.records {
		total += r.Count
	}
	return total
}

// Keywords returns the keyword names sorted alphabetically.
func (c *Counter) Keywords() []string {
	keywords := bulk.MapKeysSlice(c.records)
	slices.SortFunc(keywords, strings.Compare)
	return keywords
}

// Summary builds the sorted summary rows of the counter.
func (c *Counter) Summary(generatedAt time.Time) Summary {
	keywords := c.Keywords()
	rows := make([]KeywordUsage, len(keywords))
	for i, keyword := range keywords {
		r := c.records[keyword]
		rows[i] = KeywordUsage{
			Keyword:     keyword,
			CallCount:   r.Count,
			ParentCount: r.CallerCount(),
		}
	}
	return Summary{GeneratedAt: generatedAt, Keywords: rows}
}
