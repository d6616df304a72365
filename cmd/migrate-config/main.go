// Package main converts a legacy single-user health-assistant config file to
// the multi-user layout.
// Usage: migrate-config [--output FILE] [--user-id ID] [config.yaml]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"health-assistant/internal/config"
	"health-assistant/internal/domain/entity"
)

// backupTimeLayout matches <input>.backup.YYYYMMDD_HHMMSS.
const backupTimeLayout = "20060102_150405"

func main() {
	var output, userID string
	flag.StringVar(&output, "output", "", "Output file (default: overwrite input, keeping a backup)")
	flag.StringVar(&output, "o", "", "Shorthand for --output")
	flag.StringVar(&userID, "user-id", config.LegacyUserID, "User ID for the migrated user")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate-config [--output FILE] [--user-id ID] [config.yaml]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  migrate-config config.yaml")
		fmt.Fprintln(os.Stderr, "  migrate-config --output new.yaml old.yaml")
		fmt.Fprintln(os.Stderr, "  migrate-config --user-id alice config.yaml")
		fmt.Fprintln(os.Stderr, "")
		flag.PrintDefaults()
	}
	flag.Parse()

	input := "config.yaml"
	if args := flag.Args(); len(args) > 0 {
		input = args[0]
	}

	if err := migrate(os.Stdout, input, output, userID, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// migrate rewrites input. With an empty output the input is renamed to a
// timestamped backup and the migrated document takes its place.
func migrate(w io.Writer, input, output, userID string, now time.Time) error {
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	// #nosec G304 -- input is an operator-supplied path
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	fmt.Fprintf(w, "Reading config from: %s\n", input)

	m, err := config.MigrateDocument(data, userID)
	switch {
	case errors.Is(err, config.ErrAlreadyMigrated):
		fmt.Fprintln(w, "Config is already in multi-user format")
		fmt.Fprintf(w, "   Found %d users configured\n", m.Users)
		return nil
	case err != nil:
		return err
	}
	if err := entity.ValidateTenantID(m.UserID); err != nil {
		return err
	}

	if output == "" {
		backup := fmt.Sprintf("%s.backup.%s", input, now.Format(backupTimeLayout))
		if err := os.Rename(input, backup); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		fmt.Fprintf(w, "Created backup: %s\n", backup)
		output = input
	}

	if err := os.WriteFile(output, m.Output, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write migrated config: %w", err)
	}

	fmt.Fprintf(w, "Migrated config saved to: %s\n", output)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Migration Summary:")
	fmt.Fprintf(w, "   - Created user: %s\n", m.UserID)
	fmt.Fprintf(w, "   - User name: %s\n", m.UserName)
	fmt.Fprintf(w, "   - Oura token: %s\n", maskToken(m.OuraToken))
	fmt.Fprintf(w, "   - Telegram chat ID: %s\n", m.TelegramRef)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Next Steps:")
	fmt.Fprintf(w, "   1. Review the migrated config at: %s\n", output)
	fmt.Fprintln(w, "   2. Test with: worker -now -config "+output)
	return nil
}

// maskToken keeps only the last 8 characters.
func maskToken(token string) string {
	r := []rune(token)
	if len(r) > 8 {
		r = r[len(r)-8:]
	}
	return "***" + string(r)
}
