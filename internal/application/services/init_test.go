package services

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env for tests that read environment knobs (sweep interval, JWT secret)
	paths := []string{
		"../../../.env",
		"../../.env",
		"../.env",
		".env",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				log.Printf("📁 Loaded .env from %s for tests", p)
				return
			}
		}
	}
}
