package kwstats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// LoadedReport is a parsed report together with the fingerprint of its content.
type LoadedReport struct {
	*Report
	// Fingerprint is the xxhash64 of the uncompressed report content.
	Fingerprint uint64
	// Size is the uncompressed byte size of the report.
	Size int
}

// ReadReportFile reads and parses an execution report. Files ending in .gz or .zst are decompressed first.
// The format is detected from the content, falling back to the file extension.
// When a *ParseError marked Partial is returned the LoadedReport is also returned, holding what was parsed.
func ReadReportFile(path string) (*LoadedReport, error) {
	data, err := readReportBytes(path)
	if err != nil {
		return nil, err
	}

	loaded := &LoadedReport{Fingerprint: xxhash.Sum64(data), Size: len(data)}
	var report *Report
	switch detectFormat(path, data) {
	case FormatJSON:
		report, err = parseJSON(data, path)
	case FormatXML:
		report, err = parseXML(bytes.NewReader(data), path)
	default:
		return nil, &ParseError{Path: path, Err: errors.New("unrecognized report format")}
	}
	if report == nil {
		return nil, err
	}
	loaded.Report = report
	return loaded, err
}

func readReportBytes(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, configErrorf("report file not readable: %v", err)
		}
		return nil, fmt.Errorf("open report failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("gzip header: %w", err)}
		}
		defer func() { _ = gz.Close() }()
		r = gz
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader failed: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) ||
			errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zstd.ErrMagicMismatch) {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("decompress: %w", err)}
		}
		return nil, fmt.Errorf("read report failed: %w", err)
	}
	return data, nil
}

// detectFormat returns the report format from the first significant byte, or the extension when empty.
func detectFormat(path string, data []byte) ReportFormat {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '<':
			return FormatXML
		case '{':
			return FormatJSON
		default:
			return ""
		}
	}

	base := strings.ToLower(path)
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".gz"), ".zst")
	switch filepath.Ext(base) {
	case ".xml":
		return FormatXML
	case ".json":
		return FormatJSON
	}
	return ""
}
