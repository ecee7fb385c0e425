package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"promoreel/internal/infra"
	"promoreel/internal/infra/credentials"
)

// credtool persists a provider token into the integration-token table so
// deployments can rotate publish and generation credentials without
// restarting the API.
func main() {
	var (
		tokenFlag    string
		providerFlag string
	)
	flag.StringVar(&tokenFlag, "token", "", "token for the selected provider (falls back to the provider's environment variable)")
	flag.StringVar(&providerFlag, "provider", "", "provider to configure, one of: "+strings.Join(credentials.Known(), ", "))
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if !knownProvider(provider) {
		fmt.Fprintf(os.Stderr, "unsupported provider %q (known: %s)\n", providerFlag, strings.Join(credentials.Known(), ", "))
		os.Exit(1)
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "credtool").Str("provider", provider).Logger()

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		// Resolve with a nil store reads the environment only.
		token = credentials.Resolve(context.Background(), nil, logger, []string{provider})[provider]
	}
	if token == "" {
		fmt.Fprintf(os.Stderr, "a token for %s is required via -token or environment\n", provider)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetToken(ctxExec, provider, token); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s token: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s token stored successfully\n", provider)
}

func knownProvider(name string) bool {
	for _, known := range credentials.Known() {
		if name == known {
			return true
		}
	}
	return false
}
