package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// ErrNoDatabaseURL is returned when no connection string is configured.
var ErrNoDatabaseURL = errors.New("DATABASE_URL not found in config, environment or .env")

// NewDB creates a new database connection. configured wins over the
// environment when set.
func NewDB(ctx context.Context, configured string) (*sql.DB, error) {
	dbURL, err := ResolveURL(configured)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// ResolveURL returns configured, DATABASE_URL, or DATABASE_URL from the
// nearest .env file walking up from the working directory.
func ResolveURL(configured string) (string, error) {
	if direct := strings.TrimSpace(configured); direct != "" {
		return direct, nil
	}
	if direct := strings.TrimSpace(os.Getenv("DATABASE_URL")); direct != "" {
		return direct, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	envPath, err := findEnvFile(wd)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDatabaseURL, err)
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", envPath, err)
	}
	value, ok := values["DATABASE_URL"]
	if !ok {
		return "", ErrNoDatabaseURL
	}
	if value = strings.TrimSpace(value); value == "" {
		return "", errors.New("DATABASE_URL is empty in .env")
	}
	return value, nil
}

func findEnvFile(start string) (string, error) {
	dir := start
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf(".env not found starting from %s", start)
}
