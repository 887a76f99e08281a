package kwstats

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pmezard/go-difflib/difflib"
)

// KeywordUsage is one summary row.
type KeywordUsage struct {
	Keyword     string
	CallCount   int
	ParentCount int
}

// Summary is the rendered result of a Counter, rows sorted by keyword name.
type Summary struct {
	GeneratedAt time.Time
	Keywords    []KeywordUsage
}

// usageCounts is the serialized value per keyword in the summary file.
type usageCounts struct {
	CallCount   int `json:"call_count"`
	ParentCount int `json:"parent_count"`
}

// SummaryMap is the serialized form of a Summary, keyed by keyword name.
// It contains only counts, never caller names or tokens.
type SummaryMap map[string]usageCounts

// Map converts the summary into its serialized form.
func (s Summary) Map() SummaryMap {
	m := make(SummaryMap, len(s.Keywords))
	for _, row := range s.Keywords {
		m[row.Keyword] = usageCounts{CallCount: row.CallCount, ParentCount: row.ParentCount}
	}
	return m
}

// Summary converts the serialized form back into sorted rows.
func (m SummaryMap) Summary() Summary {
	keywords := slices.Sorted(maps.Keys(m))
	rows := make([]KeywordUsage, len(keywords))
	for i, keyword := range keywords {
		rows[i] = KeywordUsage{
			Keyword:     keyword,
			CallCount:   m[keyword].CallCount,
			ParentCount: m[keyword].ParentCount,
		}
	}
	return Summary{Keywords: rows}
}

// MarshalJSON encodes the summary in the statistics file format, keys sorted alphabetically.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(s.Map(), "", "  ")
}

// UnmarshalJSON decodes the statistics file format.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var m SummaryMap
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for keyword, counts := range m {
		if counts.CallCount < 0 || counts.ParentCount < 0 || counts.ParentCount > counts.CallCount {
			return fmt.Errorf("invalid counts for keyword %q: call_count=%d parent_count=%d",
				keyword, counts.CallCount, counts.ParentCount)
		}
	}
	*s = m.Summary()
	return nil
}

// WriteToFile writes the summary as JSON. The file is written to a temporary sibling first and then moved in
// place, a failed write does not leave a partial file behind.
func (s Summary) WriteToFile(path string) error {
	if path == "" {
		return nil
	}

	encoded, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal summary failed: %w", err)
	}
	if err := writeFileReplace(path, append(encoded, '\n')); err != nil {
		return fmt.Errorf("write summary file failed: %w", err)
	}
	return nil
}

// ReadSummaryJSON reads a summary file written by WriteToFile.
func ReadSummaryJSON(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary failed: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary failed: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		s.GeneratedAt = info.ModTime()
	}
	return s, nil
}

// TotalCalls returns the sum of all call counts.
func (s Summary) TotalCalls() int {
	var total int
	for _, row := range s.Keywords {
		total += row.CallCount
	}
	return total
}

// RenderTable writes the summary as a bordered text table.
func RenderTable(w io.Writer, s Summary) error {
	_, err := io.WriteString(w, TableString(s)+"\n")
	return err
}

// TableString renders the summary as a bordered text table.
func TableString(s Summary) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleDefault)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.AppendHeader(table.Row{"Keyword", "count", "parents"})
	for _, row := range s.Keywords {
		tbl.AppendRow(table.Row{row.Keyword, row.CallCount, row.ParentCount})
	}
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft},
	})
	return tbl.Render()
}

// DiffSummaries returns a unified diff of the rendered tables, empty when the summaries render identically.
func DiffSummaries(baselineName string, baseline Summary, currentName string, current Summary) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(summaryLines(baseline)),
		B:        difflib.SplitLines(summaryLines(current)),
		FromFile: baselineName,
		ToFile:   currentName,
		Context:  1,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// summaryLines renders one line per keyword, keeping diffs readable regardless of column widths.
func summaryLines(s Summary) string {
	var sb strings.Builder
	for _, row := range s.Keywords {
		fmt.Fprintf(&sb, "%s: count=%d parents=%d\n", row.Keyword, row.CallCount, row.ParentCount)
	}
	return sb.String()
}
