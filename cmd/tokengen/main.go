// Package main provides a CLI tool for generating trusted-caller service
// tokens for the warden guard. Tokens are signed with SERVICE_TOKEN_SECRET
// unless -secret is given.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"warden/internal/platform/config"
	"warden/internal/risk/trustedcaller"
)

const (
	defaultAudience = "warden"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Subject   string            `json:"subject"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	serviceCmd := flag.NewFlagSet("service", flag.ExitOnError)
	subject := serviceCmd.String("subject", "", "Calling service name (must be in SERVICE_TOKEN_SUBJECTS)")
	secret := serviceCmd.String("secret", "", "Signing secret. Defaults to SERVICE_TOKEN_SECRET.")
	audience := serviceCmd.String("audience", defaultAudience, "Token audience")
	ttl := serviceCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	asJSON := serviceCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "service":
		serviceCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateServiceToken(*subject, *secret, *audience, *ttl, *asJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func generateServiceToken(subject, secret, audience string, ttl time.Duration, asJSON bool) {
	if subject == "" {
		fmt.Fprintln(os.Stderr, "Error: -subject is required")
		os.Exit(1)
	}
	if secret == "" {
		config.LoadDotEnv()
		secret = os.Getenv("SERVICE_TOKEN_SECRET")
	}

	verifier, err := trustedcaller.New(secret, audience, []string{subject})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	token, err := verifier.Issue(subject, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		out := tokenOutput{
			Token:     token,
			Type:      "service",
			ExpiresIn: ttl.String(),
			Subject:   subject,
			Usage: map[string]string{
				"header": trustedcaller.Header + ": " + token,
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(token)
}

func printUsage() {
	fmt.Println(`tokengen - Generate trusted-caller tokens for the warden guard

Usage:
  tokengen <command> [flags]

Commands:
  service   Generate a service token (HS256 JWT)

Examples:
  # Token for the checkout service, secret read from SERVICE_TOKEN_SECRET
  tokengen service -subject checkout

  # Longer-lived token as JSON
  tokengen service -subject checkout -ttl 1h -json

Use "tokengen <command> -h" for more information about a command.`)
}
