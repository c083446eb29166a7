// Package config loads and validates application configuration from
// environment variables, with an optional TOML file as a lower-priority
// overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
)

// Resolver names the crossmatch resolver a run selects.
type Resolver string

const (
	ResolverIdentity Resolver = "identity"
	ResolverTwoRadii Resolver = "two-radii"
)

// Config holds all application configuration for one pipeline invocation.
type Config struct {
	// Store.
	DatabaseURL string
	TableName   string

	// Resolver selection.
	Resolver          Resolver
	RadiusArcsec      float64 // identity resolver
	InnerRadiusArcsec float64 // two-radii resolver (r1)
	OuterRadiusArcsec float64 // two-radii resolver (r2)
	PGCColumn         string
	RedshiftTolerance float64

	// Run behavior.
	BatchSize    int
	Write        bool
	PrintPending bool

	// Admin API write-back.
	AdminAPIURL  string
	AdminAgentID string
	AdminAPIKey  string

	// Logging.
	LogLevel string
	LogFile  string

	// OTEL.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// fileOverlay is the subset of Config settable from a TOML config file.
// The toml tags give the TOML keys (lowercase, snake_case).
type fileOverlay struct {
	DatabaseURL       string  `toml:"database_url"`
	TableName         string  `toml:"table_name"`
	Resolver          string  `toml:"resolver"`
	BatchSize         int     `toml:"batch_size"`
	RadiusArcsec      float64 `toml:"radius_arcsec"`
	InnerRadiusArcsec float64 `toml:"r1_arcsec"`
	OuterRadiusArcsec float64 `toml:"r2_arcsec"`
	PGCColumn         string  `toml:"pgc_column"`
	RedshiftTolerance float64 `toml:"redshift_tolerance"`
	PrintPending      bool    `toml:"print_pending"`
	Write             bool    `toml:"write"`
	AdminAPIURL       string  `toml:"admin_api_url"`
	AdminAgentID      string  `toml:"admin_agent_id"`
	AdminAPIKey       string  `toml:"admin_api_key"`
	LogLevel          string  `toml:"log_level"`
	LogFile           string  `toml:"log_file"`
}

// Load reads configuration from LEDAMATCH_CONFIG_FILE (if set) and then
// environment variables, with env vars taking precedence field-by-field
// over anything the file set.
func Load() (Config, error) {
	cfg := Config{
		Resolver:          ResolverIdentity,
		BatchSize:         10000,
		RadiusArcsec:      5.0,
		RedshiftTolerance: 3e-4,
		LogLevel:          "info",
		ServiceName:       "ledamatch",
	}

	if path := os.Getenv("LEDAMATCH_CONFIG_FILE"); path != "" {
		var overlay fileOverlay
		if _, err := toml.DecodeFile(path, &overlay); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		applyOverlay(&cfg, overlay)
	}

	var errs []error
	cfg.DatabaseURL = envStr("LEDAMATCH_DATABASE_URL", cfg.DatabaseURL)
	cfg.TableName = envStr("LEDAMATCH_TABLE_NAME", cfg.TableName)
	if r := os.Getenv("LEDAMATCH_RESOLVER"); r != "" {
		cfg.Resolver = Resolver(r)
	}
	cfg.PGCColumn = envStr("LEDAMATCH_PGC_COLUMN", cfg.PGCColumn)
	cfg.PrintPending, errs = collectBool(errs, "LEDAMATCH_PRINT_PENDING", cfg.PrintPending)
	cfg.Write, errs = collectBool(errs, "LEDAMATCH_WRITE", cfg.Write)
	cfg.AdminAPIURL = envStr("LEDAMATCH_ADMIN_API_URL", cfg.AdminAPIURL)
	cfg.AdminAgentID = envStr("LEDAMATCH_ADMIN_AGENT_ID", cfg.AdminAgentID)
	cfg.AdminAPIKey = envStr("LEDAMATCH_ADMIN_API_KEY", cfg.AdminAPIKey)
	cfg.LogLevel = envStr("LEDAMATCH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envStr("LEDAMATCH_LOG_FILE", cfg.LogFile)
	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.ServiceName)

	cfg.BatchSize, errs = collectInt(errs, "LEDAMATCH_BATCH_SIZE", cfg.BatchSize)
	cfg.RadiusArcsec, errs = collectFloat(errs, "LEDAMATCH_RADIUS_ARCSEC", cfg.RadiusArcsec)
	cfg.InnerRadiusArcsec, errs = collectFloat(errs, "LEDAMATCH_R1_ARCSEC", cfg.InnerRadiusArcsec)
	cfg.OuterRadiusArcsec, errs = collectFloat(errs, "LEDAMATCH_R2_ARCSEC", cfg.OuterRadiusArcsec)
	cfg.RedshiftTolerance, errs = collectFloat(errs, "LEDAMATCH_REDSHIFT_TOLERANCE", cfg.RedshiftTolerance)
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", cfg.OTELInsecure)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyOverlay(cfg *Config, o fileOverlay) {
	if o.DatabaseURL != "" {
		cfg.DatabaseURL = o.DatabaseURL
	}
	if o.TableName != "" {
		cfg.TableName = o.TableName
	}
	if o.Resolver != "" {
		cfg.Resolver = Resolver(o.Resolver)
	}
	if o.BatchSize != 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.RadiusArcsec != 0 {
		cfg.RadiusArcsec = o.RadiusArcsec
	}
	if o.InnerRadiusArcsec != 0 {
		cfg.InnerRadiusArcsec = o.InnerRadiusArcsec
	}
	if o.OuterRadiusArcsec != 0 {
		cfg.OuterRadiusArcsec = o.OuterRadiusArcsec
	}
	if o.PGCColumn != "" {
		cfg.PGCColumn = o.PGCColumn
	}
	if o.RedshiftTolerance != 0 {
		cfg.RedshiftTolerance = o.RedshiftTolerance
	}
	cfg.PrintPending = o.PrintPending
	cfg.Write = o.Write
	if o.AdminAPIURL != "" {
		cfg.AdminAPIURL = o.AdminAPIURL
	}
	if o.AdminAgentID != "" {
		cfg.AdminAgentID = o.AdminAgentID
	}
	if o.AdminAPIKey != "" {
		cfg.AdminAPIKey = o.AdminAPIKey
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
}

// Validate enforces the ConfigError-worthy preconditions: a
// non-empty database URL and table name, a resolver-appropriate positive
// radius configuration, and (when write is enabled) a non-empty admin API
// URL.
func (c Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: LEDAMATCH_DATABASE_URL is required"))
	}
	if c.TableName == "" {
		errs = append(errs, errors.New("config: LEDAMATCH_TABLE_NAME is required"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("config: LEDAMATCH_BATCH_SIZE must be positive"))
	}
	if c.RedshiftTolerance <= 0 {
		errs = append(errs, errors.New("config: LEDAMATCH_REDSHIFT_TOLERANCE must be positive"))
	}

	switch c.Resolver {
	case ResolverIdentity:
		if c.RadiusArcsec <= 0 {
			errs = append(errs, errors.New("config: LEDAMATCH_RADIUS_ARCSEC must be positive for the identity resolver"))
		}
	case ResolverTwoRadii:
		if c.InnerRadiusArcsec <= 0 || c.OuterRadiusArcsec <= 0 {
			errs = append(errs, errors.New("config: LEDAMATCH_R1_ARCSEC and LEDAMATCH_R2_ARCSEC must be positive for the two-radii resolver"))
		} else if c.InnerRadiusArcsec > c.OuterRadiusArcsec {
			errs = append(errs, errors.New("config: LEDAMATCH_R1_ARCSEC must not be larger than LEDAMATCH_R2_ARCSEC"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: LEDAMATCH_RESOLVER %q is not one of identity, two-radii", c.Resolver))
	}

	if c.Write && c.AdminAPIURL == "" {
		errs = append(errs, errors.New("config: LEDAMATCH_ADMIN_API_URL is required when LEDAMATCH_WRITE is true"))
	}

	if len(errs) > 0 {
		return &crossmatch.ConfigError{Detail: errors.Join(errs...).Error()}
	}
	return nil
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

// ArcsecToDeg converts an arcsecond radius to degrees, the unit every
// crossmatch.Resolver works in.
func ArcsecToDeg(arcsec float64) float64 {
	return arcsec / 3600.0
}
