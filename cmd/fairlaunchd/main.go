// ====================================
// File: cmd/fairlaunchd/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rovshanmuradov/fairlaunch/internal/platform"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := platform.NewRunner()
	if err := runner.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := runner.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "platform error: %v\n", err)
		os.Exit(1)
	}
}
