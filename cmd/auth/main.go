// Command auth manages API keys from the terminal.
//
// Keys are scoped: scan allows scanning and analytics reads, register
// allows pattern registration, and admin implies everything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

const usage = `usage: auth <command> [flags]

commands:
  create  mint a new API key
  revoke  deactivate a key
  list    show active keys

examples:
  auth create -name reporting -scopes scan,register -rate-limit 100 -expires-in 720h
  auth revoke -key qm_...
  auth list
`

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(*configPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "auth: %v\n", err)
		os.Exit(1)
	}
}

// run opens the key store and dispatches the subcommand, so the deferred
// Close fires on every exit path.
func run(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	v := apikey.NewValidator(db)

	switch cmd := args[0]; cmd {
	case "create":
		return createKey(ctx, v, args[1:])
	case "revoke":
		return revokeKey(ctx, v, args[1:])
	case "list":
		return listKeys(ctx, v)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func createKey(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "owner name recorded with the key")
	scopesFlag := fs.String("scopes", apikey.ScopeScan, "comma-separated: scan, register, admin")
	rateLimit := fs.Int("rate-limit", 100, "requests per minute")
	expiresIn := fs.String("expires-in", "", "lifetime as a Go duration, empty for no expiry")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	scopes, err := parseScopes(*scopesFlag)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if *expiresIn != "" {
		d, err := time.ParseDuration(*expiresIn)
		if err != nil {
			return fmt.Errorf("parsing -expires-in: %w", err)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	raw, err := v.CreateKey(ctx, *name, scopes, *rateLimit, expiresAt)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}

	// Only the hash is stored, so the raw key is shown exactly once.
	fmt.Printf("created key for %q\n\n  %s\n\n", *name, raw)
	fmt.Printf("scopes: %s, rate limit: %d req/min, expires: %s\n",
		strings.Join(scopes, ","), *rateLimit, expiryLabel(expiresAt))
	return nil
}

func revokeKey(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	key := fs.String("key", "", "raw key to revoke")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("-key is required")
	}
	if err := v.RevokeKey(ctx, *key); err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	fmt.Println("key revoked")
	return nil
}

func listKeys(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("no active keys")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCOPES\tRATE LIMIT\tCREATED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/min\t%s\t%s\n",
			k.ID, k.Name, strings.Join(k.Scopes, ","), k.RateLimit,
			k.CreatedAt.Format("2006-01-02"), expiryLabel(k.ExpiresAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d active key(s)\n", len(keys))
	return nil
}

func expiryLabel(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// parseScopes splits and validates the -scopes flag.
func parseScopes(raw string) ([]string, error) {
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		switch s {
		case apikey.ScopeScan, apikey.ScopeRegister, apikey.ScopeAdmin:
			scopes = append(scopes, s)
		default:
			return nil, fmt.Errorf("unknown scope %q", s)
		}
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	return scopes, nil
}
