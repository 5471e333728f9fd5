package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/quatton/qhook/pkg/db"
	"github.com/quatton/qhook/pkg/qlog"
)

const usage = "usage: migrate [up|down|status]"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ No .env file found")
	} else {
		log.Println("✓ Loaded .env file")
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx := context.Background()
	logger := qlog.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	var cfg db.Config
	if err := envconfig.Process("DB", &cfg); err != nil {
		log.Fatalf("failed to process env vars: %v", err)
	}

	database, err := db.New(ctx, cfg, os.Stderr)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	switch command {
	case "up":
		log.Println("Running migrations...")
		if err := db.Migrate(ctx, database, logger); err != nil {
			logger.Fatalf("failed to migrate: %v", err)
		}
		log.Println("Migrations completed successfully.")
	case "down":
		if err := db.Rollback(ctx, database, logger); err != nil {
			logger.Fatalf("failed to rollback: %v", err)
		}
	case "status":
		applied, pending, err := db.Status(ctx, database)
		if err != nil {
			log.Fatalf("%v", err)
		}
		for _, name := range applied {
			fmt.Printf("  ✓ %s\n", name)
		}
		for _, name := range pending {
			fmt.Printf("  … %s (pending)\n", name)
		}
	default:
		log.Fatal(usage)
	}
}
