package main

import (
	"fmt"
	"os"

	"github.com/slurmdesk/slurmdesk/internal/fatomic"
)

// Version will be set a build time with -ldflags
var Version = "0.0.0-dev"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gendoc <openapi.yaml>")
		os.Exit(2)
	}
	g := NewOpenApiGenerator(Version)
	g.InitOperations()
	data, err := g.GetDocs().MarshalYAML()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := fatomic.WriteFile(os.Args[1], data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
