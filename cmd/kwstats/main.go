package main

import (
	"log"
	"os"

	"github.com/robotlens/kwstats/kwstats"
	"github.com/robotlens/kwstats/kwstats/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags)

	config, err := cmd.ParseFlags(nil) // No custom flags for standard kwstats
	if err != nil {
		log.Fatalf("%s%v", kwstats.ErrorLogPrefix, err)
	}

	if err := kwstats.NewEngine(config).Run(os.Stdout); err != nil {
		log.Fatalf("%s%v", kwstats.ErrorLogPrefix, err)
	}
}
