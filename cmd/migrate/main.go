package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/seed"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errUsage = errors.New("usage")

type options struct {
	direction string
	steps     int
	dsn       string
	seedFile  string
}

func parseArgs(args []string, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status|seed")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: BOOKSHOP_POSTGRES_DSN)")
	fs.StringVar(&opts.seedFile, "seed-file", "", "YAML seed document for -direction=seed (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv("BOOKSHOP_POSTGRES_DSN"))
	}
	if opts.dsn == "" {
		return options{}, fmt.Errorf("%w: BOOKSHOP_POSTGRES_DSN (or -dsn) is required", errUsage)
	}
	switch opts.direction {
	case "up", "down", "status", "seed":
	default:
		return options{}, fmt.Errorf("%w: unsupported direction %q (use up|down|status|seed)", errUsage, opts.direction)
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	case "seed":
		doc, err := seed.LoadFile(opts.seedFile)
		if err != nil {
			return err
		}
		repos := seed.Repositories{
			Statuses: postgres.NewStatusRepository(store),
			Catalog:  postgres.NewCatalogRepository(store),
			Accounts: postgres.NewAccountRepository(store),
			Coupons:  postgres.NewCouponRepository(store),
		}
		summary, err := seed.Apply(ctx, repos, doc, log.WithField("component", "seed"))
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		_, _ = fmt.Fprintf(out, "seed ok: statuses=%d books=%d accounts=%d coupons=%d\n",
			summary.Statuses, summary.Books, summary.Accounts, summary.Coupons)
		return nil
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", opts.direction, version, count)
	return nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
