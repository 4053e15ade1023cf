package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/go-lynx/hive/cmd/hive/internal/ops"
)

// release is set with -ldflags "-X main.release=..."
var release = "v0.1.0"

func main() {
	if err := ops.NewRoot(release).Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
