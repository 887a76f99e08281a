package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robotlens/kwstats/kwstats"
)

const usageHint = "Usage: kwstats [flags] <output.xml|output.json> [more reports...]\n" +
	"Example: kwstats -library SeleniumLibrary ../output.xml"

// CustomFlag defines a custom CLI option.
type CustomFlag struct {
	Name         string
	DefaultValue any
	Usage        string
	Type         string // "string", "int", "bool"
}

// FileConfig is the YAML config file structure, fields left empty do not override defaults.
type FileConfig struct {
	JSON        string   `yaml:"json"`
	Snapshot    string   `yaml:"snapshot"`
	Charts      string   `yaml:"charts"`
	Store       string   `yaml:"store"`
	CacheMB     int      `yaml:"cachemb"`
	Metrics     *bool    `yaml:"storemetrics"`
	Libraries   []string `yaml:"libraries"`
	Attribution string   `yaml:"attribution"`
	Partial     *bool    `yaml:"partial"`
}

// ReadFileConfig reads a YAML config file.
func ReadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file failed: %v", kwstats.ErrConfig, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: parse config file %s failed: %v", kwstats.ErrConfig, path, err)
	}
	return &fc, nil
}

// ParseFlags builds Config from standard and custom flags. Positional arguments are the report files.
func ParseFlags(customFlags []CustomFlag) (*kwstats.Config, error) {
	config := &kwstats.Config{CustomFlags: make(map[string]string)}

	// Define all standard flags
	summaryJSONFile := flag.String("json", kwstats.DefaultSummaryFile, "File to output keyword statistics")
	snapshotFile := flag.String("snapshot", "", "File to output the mergeable statistics snapshot")
	mergeFiles := flag.String("merge", "", "Comma separated snapshot files to merge into the statistics")
	chartsFile := flag.String("charts", "", "File to output statistics overview chart image (.png, .jpg, .svg)")
	baselineFile := flag.String("baseline", "", "Previous statistics file to compare against")
	storeDir := flag.String("store", "", "Directory of the statistics store accumulating results across runs")
	cacheMB := flag.Int("cachemb", 64, "Statistics store cache memory budget in MB")
	storeMetrics := flag.Bool("storemetrics", false, "Log statistics store cache metrics on completion")
	libraries := flag.String("library", "", "Comma separated libraries to count keywords of, default counts all. "+
		"SeleniumLibrary,SeleniumLibraryToBrowser gives the SeleniumStats compatible numbers")
	attribution := flag.String("attribution", string(kwstats.AttributionContext),
		"Caller attribution, values can be: context (default), frame")
	allowPartial := flag.Bool("partial", false, "Count the readable part of a truncated report instead of failing")
	configFile := flag.String("config", "", "YAML config file, explicit flags take precedence")

	// Define custom flags
	customPtrs := make(map[string]interface{})
	for _, cf := range customFlags {
		switch cf.Type {
		case "string":
			customPtrs[cf.Name] = flag.String(cf.Name, cf.DefaultValue.(string), cf.Usage)
		case "int":
			customPtrs[cf.Name] = flag.Int(cf.Name, cf.DefaultValue.(int), cf.Usage)
		case "bool":
			customPtrs[cf.Name] = flag.Bool(cf.Name, cf.DefaultValue.(bool), cf.Usage)
		}
	}

	flag.Parse()

	// Populate config
	config.ReportFiles = flag.Args()
	config.SummaryJSONFile = *summaryJSONFile
	config.SnapshotFile = *snapshotFile
	config.MergeFiles = splitList(*mergeFiles)
	config.ChartsFile = *chartsFile
	config.BaselineFile = *baselineFile
	config.StoreDir = *storeDir
	config.StoreCacheMB = *cacheMB
	config.StoreMetrics = *storeMetrics
	config.Libraries = splitList(*libraries)
	config.Attribution = kwstats.AttributionMode(*attribution)
	config.AllowPartial = *allowPartial

	if *configFile != "" {
		fc, err := ReadFileConfig(*configFile)
		if err != nil {
			return nil, err
		}
		applyFileConfig(config, fc, explicitFlags())
	}

	// Validate standard flags
	if len(config.ReportFiles) == 0 && len(config.MergeFiles) == 0 && config.StoreDir == "" {
		return nil, fmt.Errorf("%w: no report file given\n%s", kwstats.ErrConfig, usageHint)
	} else if config.SummaryJSONFile == "" {
		return nil, fmt.Errorf("%w: -json must not be empty", kwstats.ErrConfig)
	}

	// Populate custom flags - convert all to strings for ease of use
	for name, ptr := range customPtrs {
		switch v := ptr.(type) {
		case *string:
			config.CustomFlags[name] = *v
		case *int:
			config.CustomFlags[name] = strconv.Itoa(*v)
		case *bool:
			config.CustomFlags[name] = strconv.FormatBool(*v)
		}
	}

	return config, nil
}

func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFileConfig copies file values into config for every flag not set on the command line.
func applyFileConfig(config *kwstats.Config, fc *FileConfig, explicit map[string]bool) {
	if fc.JSON != "" && !explicit["json"] {
		config.SummaryJSONFile = fc.JSON
	}
	if fc.Snapshot != "" && !explicit["snapshot"] {
		config.SnapshotFile = fc.Snapshot
	}
	if fc.Charts != "" && !explicit["charts"] {
		config.ChartsFile = fc.Charts
	}
	if fc.Store != "" && !explicit["store"] {
		config.StoreDir = fc.Store
	}
	if fc.CacheMB != 0 && !explicit["cachemb"] {
		config.StoreCacheMB = fc.CacheMB
	}
	if fc.Metrics != nil && !explicit["storemetrics"] {
		config.StoreMetrics = *fc.Metrics
	}
	if len(fc.Libraries) != 0 && !explicit["library"] {
		config.Libraries = fc.Libraries
	}
	if fc.Attribution != "" && !explicit["attribution"] {
		config.Attribution = kwstats.AttributionMode(fc.Attribution)
	}
	if fc.Partial != nil && !explicit["partial"] {
		config.AllowPartial = *fc.Partial
	}
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
