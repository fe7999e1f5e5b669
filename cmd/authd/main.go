package main

import (
	"context"
	"flag"
	"log"

	"github.com/hts/authsvc/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to the YAML configuration file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}
	if err := runtime.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
