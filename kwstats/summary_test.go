package kwstats

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testSummary(rows ...KeywordUsage) Summary {
	return Summary{GeneratedAt: testTime, Keywords: rows}
}

func TestSummaryJSON(t *testing.T) {
	t.Parallel()

	t.Run("format", func(t *testing.T) {
		s := testSummary(
			KeywordUsage{Keyword: "Click Element", CallCount: 3, ParentCount: 1},
			KeywordUsage{Keyword: "Go To", CallCount: 2, ParentCount: 2},
		)
		encoded, err := json.Marshal(s)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, json.Indent(&buf, encoded, "", "  "))
		assert.Equal(t, `{
  "Click Element": {
    "call_count": 3,
    "parent_count": 1
  },
  "Go To": {
    "call_count": 2,
    "parent_count": 2
  }
}`, buf.String())
	})

	t.Run("empty", func(t *testing.T) {
		encoded, err := testSummary().MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, "{}", string(encoded))
	})

	t.Run("unmarshal_sorts", func(t *testing.T) {
		var s Summary
		require.NoError(t, json.Unmarshal(
			[]byte(`{"b": {"call_count": 1, "parent_count": 1}, "a": {"call_count": 4, "parent_count": 2}}`), &s))
		assert.Equal(t, []KeywordUsage{
			{Keyword: "a", CallCount: 4, ParentCount: 2},
			{Keyword: "b", CallCount: 1, ParentCount: 1},
		}, s.Keywords)
	})

	t.Run("unmarshal_invalid_counts", func(t *testing.T) {
		for _, data := range []string{
			`{"a": {"call_count": 1, "parent_count": 2}}`,
			`{"a": {"call_count": -1, "parent_count": 0}}`,
			`{"a": {"call_count": 1, "parent_count": -1}}`,
			`["a"]`,
		} {
			var s Summary
			assert.Error(t, json.Unmarshal([]byte(data), &s), data)
		}
	})
}

func TestSummaryFileRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	c.Add("Click Element", Anonymize("Root.T1"))
	c.Add("Click Element", Anonymize("Root.T1"))
	c.Add("Click Element", Anonymize("Root.T2"))
	c.Add("Ünïcødé Keyword", Anonymize("Root.T2"))
	s := c.Summary(testTime)

	path := filepath.Join(t.TempDir(), "keyword_stats.json")
	require.NoError(t, s.WriteToFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(content), "}\n"))
	assert.NotContains(t, string(content), "Root.T1")
	assert.NotContains(t, string(content), Anonymize("Root.T1").String())

	read, err := ReadSummaryJSON(path)
	require.NoError(t, err)
	assert.Equal(t, s.Keywords, read.Keywords)
	assert.False(t, read.GeneratedAt.IsZero())
	assert.Equal(t, 4, read.TotalCalls())

	t.Run("empty_path_noop", func(t *testing.T) {
		assert.NoError(t, s.WriteToFile(""))
	})

	t.Run("read_missing", func(t *testing.T) {
		_, err := ReadSummaryJSON(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}

func TestTableString(t *testing.T) {
	t.Parallel()

	t.Run("rows", func(t *testing.T) {
		table := TableString(testSummary(
			KeywordUsage{Keyword: "Click Element", CallCount: 3, ParentCount: 1},
			KeywordUsage{Keyword: "Go To", CallCount: 12, ParentCount: 10},
		))
		lines := strings.Split(table, "\n")
		require.Len(t, lines, 6)
		assert.Equal(t, "+---------------+-------+---------+", lines[0])
		assert.Equal(t, "| Keyword       | count | parents |", lines[1])
		assert.Equal(t, lines[0], lines[2])
		assert.Equal(t, "| Click Element | 3     | 1       |", lines[3])
		assert.Equal(t, "| Go To         | 12    | 10      |", lines[4])
		assert.Equal(t, lines[0], lines[5])
	})

	t.Run("empty", func(t *testing.T) {
		table := TableString(testSummary())
		assert.Contains(t, table, "Keyword")
		assert.Contains(t, table, "parents")
	})

	t.Run("render_writer", func(t *testing.T) {
		s := testSummary(KeywordUsage{Keyword: "Go To", CallCount: 1, ParentCount: 1})
		var buf bytes.Buffer
		require.NoError(t, RenderTable(&buf, s))
		assert.Equal(t, TableString(s)+"\n", buf.String())
	})
}

func TestDiffSummaries(t *testing.T) {
	t.Parallel()

	baseline := testSummary(
		KeywordUsage{Keyword: "A", CallCount: 1, ParentCount: 1},
		KeywordUsage{Keyword: "B", CallCount: 2, ParentCount: 1},
	)

	t.Run("changed", func(t *testing.T) {
		current := testSummary(
			KeywordUsage{Keyword: "A", CallCount: 1, ParentCount: 1},
			KeywordUsage{Keyword: "B", CallCount: 3, ParentCount: 2},
			KeywordUsage{Keyword: "C", CallCount: 1, ParentCount: 1},
		)
		diff, err := DiffSummaries("base.json", baseline, "current.json", current)
		require.NoError(t, err)
		assert.Contains(t, diff, "--- base.json")
		assert.Contains(t, diff, "+++ current.json")
		assert.Contains(t, diff, "-B: count=2 parents=1\n")
		assert.Contains(t, diff, "+B: count=3 parents=2\n")
		assert.Contains(t, diff, "+C: count=1 parents=1\n")
		assert.NotContains(t, diff, "-A:")
	})

	t.Run("identical", func(t *testing.T) {
		diff, err := DiffSummaries("base.json", baseline, "current.json", baseline)
		require.NoError(t, err)
		assert.Empty(t, diff)
	})

	t.Run("both_empty", func(t *testing.T) {
		diff, err := DiffSummaries("a", testSummary(), "b", testSummary())
		require.NoError(t, err)
		assert.Empty(t, diff)
	})
}
