/*
JWT token generator for the stream control surface.

Generates tokens using the same secret key and algorithm as the
running server, for testing and development.

Usage:
  go run ./cmd/jwt-generator --role admin --expiry-hours 72
  go run ./cmd/jwt-generator --role viewer --expiry-hours 24 --secret-key "custom-secret"
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/streamvault/streamvault-go/internal/api"
	"github.com/streamvault/streamvault-go/internal/logging"
)

var (
	role         = flag.String("role", "admin", "User role (viewer, operator, admin)")
	expiryHours  = flag.Int("expiry-hours", 48, "Token expiry in hours")
	secretKey    = flag.String("secret-key", "streamvault-dev-secret-change-in-production", "JWT secret key")
	userID       = flag.String("user-id", "", "User ID (defaults to test_<role>)")
	outputFormat = flag.String("format", "token", "Output format: token, json")
)

func main() {
	flag.Parse()

	if !api.ValidRoles[*role] {
		fmt.Fprintf(os.Stderr, "Error: invalid role %q. Valid roles: viewer, operator, admin\n", *role)
		os.Exit(1)
	}
	if *expiryHours <= 0 {
		fmt.Fprintln(os.Stderr, "Error: expiry hours must be positive")
		os.Exit(1)
	}
	if *userID == "" {
		*userID = "test_" + *role
	}

	logger := logging.NewLogger("jwt-generator")

	jwtHandler, err := api.NewJWTHandler(*secretKey, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create JWT handler: %v\n", err)
		os.Exit(1)
	}

	expiry := time.Duration(*expiryHours) * time.Hour
	token, err := jwtHandler.GenerateToken(*userID, *role, expiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		expiresAt := time.Now().Add(expiry)
		fmt.Printf(`{
  "token": "%s",
  "user_id": "%s",
  "role": "%s",
  "expires_in_hours": %d,
  "expires_at": "%s",
  "algorithm": "HS256"
}
`, token, *userID, *role, *expiryHours, expiresAt.Format(time.RFC3339))
	case "token":
		fmt.Println(token)
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid output format %q. Valid formats: token, json\n", *outputFormat)
		os.Exit(1)
	}
}
