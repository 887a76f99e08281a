package kwstats

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-analyze/bulk"
)

// DefaultSummaryFile is the statistics file name used when none is configured.
const DefaultSummaryFile = "keyword_stats.json"

const uploadNote = "Please upload or mail the statistics file to your collection point. " +
	"It contains keyword names and counts only, callers are never included."

// Config holds settings for an Engine.
type Config struct {
	// ReportFiles are the execution reports to read (output.xml or output.json, optionally .gz or .zst).
	ReportFiles []string
	// SummaryJSONFile receives the keyword statistics.
	SummaryJSONFile string
	// SnapshotFile optionally receives the counter including anonymized caller tokens.
	SnapshotFile string
	// MergeFiles are snapshot files folded in before rendering.
	MergeFiles []string
	// ChartsFile optionally receives an overview image (.png, .jpg, .svg).
	ChartsFile string
	// BaselineFile is a previous statistics file to diff the result against.
	BaselineFile string
	// StoreDir enables the persistent statistics store.
	StoreDir     string
	StoreCacheMB int
	// StoreMetrics logs the store cache metrics when the store is closed.
	StoreMetrics bool
	// Libraries restricts counting to keywords of these libraries, empty counts every keyword.
	Libraries    []string
	Attribution  AttributionMode
	AllowPartial bool
	// Custom flags support - all stored as strings for ease of use
	CustomFlags map[string]string
	// Computed fields
	AbsSummaryJSONFile string
	// Internal state tracking
	prepared bool
}

// Prepare validates the config and resolves paths. A config can only be prepared once.
func (c *Config) Prepare() error {
	if c.prepared {
		return errors.New("config has already been prepared")
	}

	if len(c.ReportFiles) == 0 && len(c.MergeFiles) == 0 && c.StoreDir == "" {
		return configErrorf("at least one report file is required")
	}
	for _, path := range c.ReportFiles {
		if err := validateFilePath(path); err != nil {
			return configErrorf("invalid report %s: %v", path, err)
		}
	}
	for _, path := range c.MergeFiles {
		if err := validateFilePath(path); err != nil {
			return configErrorf("invalid snapshot %s: %v", path, err)
		}
	}
	if c.BaselineFile != "" {
		if err := validateFilePath(c.BaselineFile); err != nil {
			return configErrorf("invalid baseline %s: %v", c.BaselineFile, err)
		}
	}

	switch c.Attribution {
	case "":
		c.Attribution = AttributionContext
	case AttributionContext, AttributionFrame:
	default:
		return configErrorf("invalid attribution '%s', must be one of: %s, %s",
			c.Attribution, AttributionContext, AttributionFrame)
	}
	for i := range c.Libraries {
		c.Libraries[i] = strings.TrimSpace(c.Libraries[i])
	}
	c.Libraries = bulk.SliceFilterInPlace(func(lib string) bool {
		return lib != ""
	}, c.Libraries)

	if c.StoreDir != "" && (c.StoreCacheMB < 1 || c.StoreCacheMB > 10240) { // 10GB limit
		return configErrorf("cache size must be between 1 and 10240 MB, got %d", c.StoreCacheMB)
	}

	if c.SummaryJSONFile == "" {
		c.SummaryJSONFile = DefaultSummaryFile
	}
	absSummary, err := filepath.Abs(c.SummaryJSONFile)
	if err != nil {
		return fmt.Errorf("error resolving statistics file path: %w", err)
	}
	c.AbsSummaryJSONFile = absSummary

	// Validate output file paths are writable (basic check)
	if err := validateOutputPath(c.AbsSummaryJSONFile); err != nil {
		return configErrorf("invalid statistics file path: %v", err)
	}
	if c.SnapshotFile != "" {
		if err := validateOutputPath(c.SnapshotFile); err != nil {
			return configErrorf("invalid snapshot file path: %v", err)
		}
	}
	if c.ChartsFile != "" {
		if _, err := ChartOutputType(c.ChartsFile); err != nil {
			return configErrorf("%v", err)
		} else if err := validateOutputPath(c.ChartsFile); err != nil {
			return configErrorf("invalid charts file path: %v", err)
		}
	}

	c.prepared = true
	return nil
}

// validateFilePath validates that a file path exists and is readable
func validateFilePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file does not exist or is not accessible: %w", err)
	} else if info.IsDir() {
		return errors.New("path is a directory, expected a file")
	}

	// Try to open the file to check readability
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file is not readable: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// validateOutputPath validates that an output file path can be written to
func validateOutputPath(path string) error {
	dir := filepath.Dir(path)

	// Check if directory exists, if not try to create it
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create output directory '%s': %w", dir, err)
		}
	}

	// Check if we can write to the directory
	file, err := os.CreateTemp(dir, ".write_test*")
	if err != nil {
		return fmt.Errorf("cannot write to output directory '%s': %w", dir, err)
	}
	_ = file.Close()
	return os.Remove(file.Name())
}

// sourceCounter is the aggregation result of one input file.
type sourceCounter struct {
	source      string
	fingerprint uint64
	counter     *Counter
}

// Engine reads execution reports and produces the keyword statistics.
type Engine struct {
	Config *Config
	// StoreOpener opens the statistics store when Config.StoreDir is set.
	StoreOpener func(dir string, cacheMB int, logMetrics bool) (*StatsStore, error)
}

// NewEngine creates an Engine using the badger backed statistics store.
func NewEngine(config *Config) *Engine {
	return &Engine{
		Config:      config,
		StoreOpener: OpenStatsStore,
	}
}

// Run reads every configured input, writes the table (and baseline diff) to stdout, and then writes the output
// files. No output file is written when any input fails.
func (e *Engine) Run(stdout io.Writer) error {
	startTime := time.Now()

	if err := e.Config.Prepare(); err != nil {
		return err
	}

	sources, err := e.readReports()
	if err != nil {
		return err
	}
	for _, path := range e.Config.MergeFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read snapshot %s failed: %w", path, err)
		}
		c, err := DecodeSnapshot(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Printf("Merging snapshot %s: %s keywords", path, humanize.Comma(int64(c.Len())))
		sources = append(sources, sourceCounter{source: path, fingerprint: xxhash.Sum64(data), counter: c})
	}

	var counter *Counter
	if e.Config.StoreDir != "" {
		if counter, err = e.applyStore(sources); err != nil {
			return err
		}
	} else {
		counter = NewCounter()
		for _, sc := range sources {
			counter.Merge(sc.counter)
		}
	}

	summary := counter.Summary(startTime)
	if err := RenderTable(stdout, summary); err != nil {
		return fmt.Errorf("write table failed: %w", err)
	}
	if e.Config.BaselineFile != "" {
		if err := e.writeBaselineDiff(stdout, summary); err != nil {
			return err
		}
	}

	if err := summary.WriteToFile(e.Config.AbsSummaryJSONFile); err != nil {
		return err
	}
	if e.Config.SnapshotFile != "" {
		if err := WriteSnapshot(e.Config.SnapshotFile, counter); err != nil {
			return err
		}
		log.Printf("Snapshot file wrote: %s", e.Config.SnapshotFile)
	}
	if e.Config.ChartsFile != "" {
		if err := WriteSummaryCharts(e.Config.ChartsFile, summary); err != nil {
			return err
		}
		log.Printf("Charts file wrote: %s", e.Config.ChartsFile)
	}

	if _, err := fmt.Fprintf(stdout, "\nStatistics File: %s\n%s\n", e.Config.AbsSummaryJSONFile, uploadNote); err != nil {
		return fmt.Errorf("write output failed: %w", err)
	}
	log.Printf("Keyword statistics completed: %s keywords, %s calls in %v",
		humanize.Comma(int64(counter.Len())), humanize.Comma(int64(counter.TotalCalls())),
		time.Since(startTime).Round(time.Millisecond))
	return nil
}

// readReports reads and aggregates every report. Several reports are read in parallel, each into its own
// counter. All failures are reported together.
func (e *Engine) readReports() ([]sourceCounter, error) {
	reportFiles := e.Config.ReportFiles
	results := make([]sourceCounter, len(reportFiles))
	if len(reportFiles) == 1 {
		sc, err := e.readReport(reportFiles[0])
		if err != nil {
			return nil, err
		}
		results[0] = sc
		return results, nil
	}

	errs := make([]error, len(reportFiles))
	errGroup := ErrGroupLimitCPU()
	for i, path := range reportFiles {
		errGroup.Go(func() error {
			results[i], errs[i] = e.readReport(path)
			return nil
		})
	}
	_ = errGroup.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) readReport(path string) (sourceCounter, error) {
	if abs, err := filepath.Abs(path); err == nil {
		log.Printf("Reading results from: %s", abs)
	}
	loaded, err := ReadReportFile(path)
	if err != nil {
		var parseErr *ParseError
		if loaded == nil || !errors.As(err, &parseErr) || !parseErr.Partial {
			return sourceCounter{}, err
		} else if !e.Config.AllowPartial {
			return sourceCounter{}, fmt.Errorf("%w (use -partial to count the readable part)", err)
		}
		log.Printf("WARN: %v, counting the nodes read before the failure", err)
	}

	c, err := Aggregate(loaded.Report, AggregateOptions{
		Attribution: e.Config.Attribution,
		Libraries:   e.Config.Libraries,
	})
	if err != nil {
		return sourceCounter{}, fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("Report %v: %s, %s keyword calls", loaded.Report,
		humanize.Bytes(uint64(loaded.Size)), humanize.Comma(int64(c.TotalCalls())))
	return sourceCounter{source: path, fingerprint: loaded.Fingerprint, counter: c}, nil
}

// applyStore ingests the sources not seen before and returns the cumulative store content.
func (e *Engine) applyStore(sources []sourceCounter) (*Counter, error) {
	store, err := e.StoreOpener(e.Config.StoreDir, e.Config.StoreCacheMB, e.Config.StoreMetrics)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("%sFailed to close statistics store: %v", ErrorLogPrefix, err)
		}
	}()

	for _, sc := range sources {
		if added, err := store.Ingest(sc.fingerprint, sc.source, sc.counter); err != nil {
			return nil, fmt.Errorf("store %s failed: %w", sc.source, err)
		} else if !added {
			log.Printf("Skipping %s, already in statistics store", sc.source)
		}
	}
	if reports, err := store.ReportCount(); err == nil {
		log.Printf("Statistics store holds %s reports", humanize.Comma(int64(reports)))
	}
	return store.Counter()
}

func (e *Engine) writeBaselineDiff(w io.Writer, summary Summary) error {
	baseline, err := ReadSummaryJSON(e.Config.BaselineFile)
	if err != nil {
		return fmt.Errorf("baseline %s: %w", e.Config.BaselineFile, err)
	}
	diff, err := DiffSummaries(e.Config.BaselineFile, baseline, e.Config.SummaryJSONFile, summary)
	if err != nil {
		return fmt.Errorf("diff baseline failed: %w", err)
	} else if diff == "" {
		log.Printf("No keyword usage changes from baseline %s", e.Config.BaselineFile)
		return nil
	}
	_, err = io.WriteString(w, "\n"+diff)
	return err
}
