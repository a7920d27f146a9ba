package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/admins"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/db"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "reset-password":
		return runResetPassword(args[1:])
	case "grant-seats":
		return runGrantSeats(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  seatdesk admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  seatdesk admin grant-seats --email user@example.com --count <n> [--reference <ref>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  seatdesk admin migrate [--status] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - grant-seats credits the admin's team when they belong to one.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to SD_DB_DSN.")
}

func resolveDSN(flagValue string) (string, bool) {
	dsn := strings.TrimSpace(flagValue)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("SD_DB_DSN"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set SD_DB_DSN)")
		return "", false
	}
	return dsn, true
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, bool) {
	pool, err := db.Connect(ctx, dsn, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Admin email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SD_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = validation.NormalizeEmail(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	dsn, ok := resolveDSN(dbDSN)
	if !ok {
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid password: %v\n", err)
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := connect(ctx, dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	if err := admins.NewStore(pool).UpdatePassword(ctx, email, passwordHash); err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No admin found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runGrantSeats(args []string) int {
	fs := flag.NewFlagSet("grant-seats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var count int
	var reference string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Admin email")
	fs.IntVar(&count, "count", 0, "Number of seats to credit")
	fs.StringVar(&reference, "reference", "", "Idempotency reference (optional)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SD_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = validation.NormalizeEmail(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}
	if count < 1 || count > seats.MaxPurchase {
		fmt.Fprintf(os.Stderr, "--count must be between 1 and %d\n", seats.MaxPurchase)
		return 2
	}

	dsn, ok := resolveDSN(dbDSN)
	if !ok {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := connect(ctx, dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	admin, err := admins.NewStore(pool).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No admin found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load admin: %v\n", err)
		return 1
	}

	svc := seats.NewService(seats.NewPGStore(pool), activity.NewWriter(pool))
	sc, err := svc.ScopeForAdmin(ctx, admin.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve scope: %v\n", err)
		return 1
	}

	res, err := svc.Purchase(ctx, seats.Purchase{
		Scope:     sc,
		AdminID:   admin.ID,
		Count:     count,
		Reference: strings.TrimSpace(reference),
		Source:    seats.SourceAdminCLI,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to grant seats: %v\n", err)
		return 1
	}

	if res.Duplicate {
		fmt.Fprintf(os.Stdout, "Reference already applied. Total seats: %d\n", res.Total)
		return 0
	}
	fmt.Fprintf(os.Stdout, "Granted %d seats. Total seats: %d\n", count, res.Total)
	return 0
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var statusOnly bool
	var dbDSN string

	fs.BoolVar(&statusOnly, "status", false, "Only list applied and pending migrations")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SD_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	dsn, ok := resolveDSN(dbDSN)
	if !ok {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, ok := connect(ctx, dsn)
	if !ok {
		return 1
	}
	defer pool.Close()

	if !statusOnly {
		if err := db.RunMigrations(ctx, pool); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			return 1
		}
	}

	status, err := db.Status(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
		return 1
	}
	for _, name := range status.Applied {
		fmt.Fprintf(os.Stdout, "applied  %s\n", name)
	}
	for _, name := range status.Pending {
		fmt.Fprintf(os.Stdout, "pending  %s\n", name)
	}
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
