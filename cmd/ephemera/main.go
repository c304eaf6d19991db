// Command ephemera ingests documents for short-lived semantic search.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/ephemera/internal/adapters/driving/cli"
)

// version is overridden at build time:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/ephemera
var version string

func main() {
	// A .env file is optional; OPENAI_API_KEY is commonly kept there.
	_ = godotenv.Load()

	cli.SetVersion(version)
	os.Exit(cli.Execute())
}
