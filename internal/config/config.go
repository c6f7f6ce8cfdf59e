// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"banyg/internal/core"
)

type Config struct {
	// Database
	DBPath    string
	BackupDir string

	// Default currency for new accounts and CSV imports
	DefaultCurrency string

	// Event relay (optional; empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sheets export (worker only; empty spreadsheet id disables it)
	SheetsSpreadsheetID   string
	SheetsSheetName       string
	SheetsCredentialsFile string
	SheetsCredentialsJSON string

	// Import
	ImportMaxRows int
}

func Load() *Config {
	return &Config{
		DBPath:    getEnv("BANYG_DB_PATH", "./data/banyg.db"),
		BackupDir: getEnv("BANYG_BACKUP_DIR", "./data/backups"),

		DefaultCurrency: getEnv("BANYG_CURRENCY", "PHP"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "banyg"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsSheetName:       getEnv("SHEETS_SHEET_NAME", "Transactions"),
		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
		SheetsCredentialsJSON: getEnv("SHEETS_CREDENTIALS_JSON", ""),

		ImportMaxRows: getEnvInt("IMPORT_MAX_ROWS", 10000),
	}
}

// Validate checks the configuration and returns every problem found in one
// error.
func (c *Config) Validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create database directory %q: %v", dir, err))
				}
			}
		}
	}

	if c.BackupDir == "" {
		problems = append(problems, "backup directory cannot be empty")
	}

	if _, ok := core.LookupCurrency(c.DefaultCurrency); !ok {
		problems = append(problems, fmt.Sprintf("unsupported default currency %q", c.DefaultCurrency))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL %q: %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme %q: must be amqp or amqps", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is set")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is set")
		}
	}

	if c.SheetsSpreadsheetID != "" {
		if c.SheetsSheetName == "" {
			problems = append(problems, "sheet name cannot be empty when spreadsheet id is set")
		}
		if c.SheetsCredentialsFile == "" && c.SheetsCredentialsJSON == "" {
			problems = append(problems, "either SHEETS_CREDENTIALS_FILE or SHEETS_CREDENTIALS_JSON must be set for sheets export")
		}
		if c.SheetsCredentialsFile != "" {
			if _, err := os.Stat(c.SheetsCredentialsFile); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("sheets credentials file does not exist: %s", c.SheetsCredentialsFile))
			}
		}
	}

	if c.ImportMaxRows < 1 {
		problems = append(problems, fmt.Sprintf("invalid import row limit %d: must be at least 1", c.ImportMaxRows))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// EventsEnabled reports whether the AMQP relay is configured.
func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }

// SheetsEnabled reports whether the Sheets exporter is configured.
func (c *Config) SheetsEnabled() bool { return c.SheetsSpreadsheetID != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
