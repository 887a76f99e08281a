package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotlens/kwstats/kwstats"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	summaryJSONFile := flag.String("json", kwstats.DefaultSummaryFile, "Keyword statistics file to render")
	chartsFile := flag.String("charts", "", "File to output statistics overview chart image (.png, .jpg, .svg)")
	flag.Parse()

	summary, err := kwstats.ReadSummaryJSON(*summaryJSONFile)
	if err != nil {
		log.Fatalf("%sFailed to read keyword statistics: %v", kwstats.ErrorLogPrefix, err)
	}
	if err := kwstats.RenderTable(os.Stdout, summary); err != nil {
		log.Fatalf("%sFailed to write table: %v", kwstats.ErrorLogPrefix, err)
	}

	if *chartsFile == "" {
		return
	}
	if err := kwstats.WriteSummaryCharts(*chartsFile, summary); err != nil {
		log.Fatalf("%sFailed to write chart file: %v", kwstats.ErrorLogPrefix, err)
	}
	log.Println("Charts file wrote: " + *chartsFile)
}
