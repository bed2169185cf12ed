package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"monity/internal/codec"
	"monity/internal/ledger"
	applog "monity/internal/log"
	"monity/internal/services"
	"monity/internal/sheets/google"
)

type Config struct {
	// Ledgers
	LedgerDir     string `mapstructure:"ledger_dir"`
	ExpensesFile  string `mapstructure:"expenses_file"`
	IncomesFile   string `mapstructure:"incomes_file"`
	AmountPolicy  string `mapstructure:"amount_policy"`
	MonthMatch    string `mapstructure:"month_match"`
	MatchMode     string `mapstructure:"match_mode"`
	MaxCandidates int    `mapstructure:"max_candidates"`
	MaxMonths     int    `mapstructure:"max_months"`

	// HTTP Server
	Port      string `mapstructure:"port"`
	RateLimit int    `mapstructure:"rate_limit"`

	LogLevel string        `mapstructure:"log_level"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// AMQP
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Mirror
	SQLiteDBPath string `mapstructure:"sqlite_db_path"`

	// Google Sheets export
	GoogleSpreadsheetID      string `mapstructure:"google_spreadsheet_id"`
	GoogleServiceAccountFile string `mapstructure:"google_service_account_file"`
	GoogleServiceAccountJSON string `mapstructure:"google_service_account_json"`
	GoogleExpensesSheet      string `mapstructure:"google_expenses_sheet"`
	GoogleIncomesSheet       string `mapstructure:"google_incomes_sheet"`
	GoogleHistorySheet       string `mapstructure:"google_history_sheet"`

	// Worker
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

var defaults = map[string]any{
	"ledger_dir":     ".",
	"expenses_file":  "expenses.txt",
	"incomes_file":   "incomes.txt",
	"amount_policy":  "coerce",
	"month_match":    "substring",
	"match_mode":     "ordinal",
	"max_candidates": 0,
	"max_months":     0,

	"port":       "8081",
	"rate_limit": 120,
	"log_level":  "info",
	"cache_ttl":  5 * time.Minute,

	"amqp_url":      "",
	"amqp_exchange": "monity",
	"amqp_queue":    "ledger_events",

	"sqlite_db_path": "./data/monity.db",

	"google_spreadsheet_id":       "",
	"google_service_account_file": "",
	"google_service_account_json": "",
	"google_expenses_sheet":       "Expenses",
	"google_incomes_sheet":        "Incomes",
	"google_history_sheet":        "History",

	"sync_interval": 5 * time.Minute,
}

// Load reads the configuration from the environment, on top of configFile
// when one is given. Environment variables are the upper-case key names,
// e.g. LEDGER_DIR.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.LedgerDir) == "" {
		errors = append(errors, "ledger directory cannot be empty")
	}
	if _, err := codec.ParseAmountPolicy(c.AmountPolicy); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := ledger.ParseMonthMatch(c.MonthMatch); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := ledger.ParseMatchMode(c.MatchMode); err != nil {
		errors = append(errors, err.Error())
	}
	if c.MaxCandidates < 0 {
		errors = append(errors, fmt.Sprintf("invalid max candidates %d: must be 0 (unlimited) or more", c.MaxCandidates))
	}
	if c.MaxMonths < 0 {
		errors = append(errors, fmt.Sprintf("invalid max months %d: must be 0 (unlimited) or more", c.MaxMonths))
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Google Sheets export is optional; once a spreadsheet is named it needs
	// credentials.
	if c.GoogleSpreadsheetID != "" {
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ServiceOptions converts the ledger settings for services.NewLedgerService.
func (c *Config) ServiceOptions() (services.Options, error) {
	policy, err := codec.ParseAmountPolicy(c.AmountPolicy)
	if err != nil {
		return services.Options{}, err
	}
	match, err := ledger.ParseMonthMatch(c.MonthMatch)
	if err != nil {
		return services.Options{}, err
	}
	mode, err := ledger.ParseMatchMode(c.MatchMode)
	if err != nil {
		return services.Options{}, err
	}
	return services.Options{
		Dir:           c.LedgerDir,
		ExpensesFile:  c.ExpensesFile,
		IncomesFile:   c.IncomesFile,
		AmountPolicy:  policy,
		MonthMatch:    match,
		MatchMode:     mode,
		MaxCandidates: c.MaxCandidates,
		MaxMonths:     c.MaxMonths,
	}, nil
}

// SheetsConfig returns the exporter settings, and false when no spreadsheet
// is configured.
func (c *Config) SheetsConfig() (google.Config, bool) {
	if c.GoogleSpreadsheetID == "" {
		return google.Config{}, false
	}
	return google.Config{
		SpreadsheetID:   c.GoogleSpreadsheetID,
		CredentialsJSON: c.GoogleServiceAccountJSON,
		CredentialsFile: c.GoogleServiceAccountFile,
		ExpensesSheet:   c.GoogleExpensesSheet,
		IncomesSheet:    c.GoogleIncomesSheet,
		HistorySheet:    c.GoogleHistorySheet,
	}, true
}
