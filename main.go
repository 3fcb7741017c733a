// Package main provides the entry point for the manga patch service.
package main

import (
	"log"

	"manga-patcher/cmd"
	"manga-patcher/internal/config"
	"manga-patcher/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is normal in containers.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
