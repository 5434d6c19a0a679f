package main

import (
	"flag"
	"log"

	"github.com/dutlab/dutctl/internal/config"
)

func main() {
	kind := flag.String("kind", "lab", "config kind: lab|remote")
	output := flag.String("output", "lab.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to -output)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = *output
		}
		if _, err := config.LoadLabConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated lab config at %s", path)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
