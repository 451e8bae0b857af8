package main

import (
	"context"
	"log/slog"
	"os"
)

func main() {
	if err := app().Run(context.Background(), os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}
