// Command token mints an operator bearer token for the API. The signing secret
// is read from JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/josh-kwaku/fund-ledger/internal/auth"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

func main() {
	operator := flag.String("operator", "", "operator id recorded on every event the token creates")
	expiry := flag.Duration("expiry", 24*time.Hour, "token lifetime")
	flag.Parse()

	logging.Init("fund-ledger-token", "info", os.Getenv("APP_ENV"), false)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	if *operator == "" {
		slog.Error("-operator is required")
		os.Exit(2)
	}

	token, err := auth.GenerateToken(*operator, secret, *expiry)
	if err != nil {
		slog.Error("failed to generate token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
