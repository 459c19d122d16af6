package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vidahome/homecare-api/pkg/auth"
)

func main() {
	// Load .env from project root
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <integrationID>")
		os.Exit(1)
	}

	integrationID := os.Args[1]
	if os.Getenv("API_MASTER_SECRET") == "" {
		fmt.Println("Error: API_MASTER_SECRET not found in .env")
		os.Exit(1)
	}

	apiKey := auth.GenerateHMACKey(integrationID)
	fmt.Printf("Generated key for %s:\n%s\n", integrationID, apiKey)
}
