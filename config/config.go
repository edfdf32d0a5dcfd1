package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment variables or .env file.
//
// It is composed of smaller structs that represent different concerns of the system,
// such as the object store, the local data lake root and the optional ingestion manifest.
//
// Example ENV equivalent:
//
//	S3_BUCKET=my-lake
//	S3_PREFIX=raw
//	AWS_REGION=sa-east-1
//	DATA_DIR=data
//	SERVER_PORT=8080
//	MANIFEST_DRIVER=sqlite
//	MANIFEST_DSN=file:manifest.db
type Config struct {
	Server   ServerConfig   // HTTP read API settings
	S3       S3Config       // Remote object store settings
	Data     DataConfig     // Local lake layout
	Manifest ManifestConfig // Optional ingestion manifest database
	Postgres PostgresConfig // PostgreSQL connection settings (manifest driver "postgres")
	Yahoo    YahooConfig    // Upstream market data source
	// UniverseFile optionally points to a YAML ticker universe used when no tickers are given.
	UniverseFile string
}

// ServerConfig holds HTTP server settings such as the port to listen on.
type ServerConfig struct {
	Port string // The TCP port the HTTP server will listen on (e.g., "8080")
}

// S3Config describes the bucket partitions are mirrored to.
//
// Fields:
//   - Bucket: target bucket; empty disables uploads.
//   - Prefix: key prefix for day partitions (default "raw").
//   - Region: AWS region (default "sa-east-1").
//   - Endpoint: optional custom endpoint (MinIO, localstack).
//   - ForcePathStyle: use path-style addressing, required by most S3 emulators.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// DataConfig holds the local lake root.
type DataConfig struct {
	Dir string
}

// ManifestConfig selects the manifest backend. An empty Driver disables it.
type ManifestConfig struct {
	Driver string // "", "postgres" or "sqlite"
	DSN    string
}

// PostgresConfig defines connection details for PostgreSQL.
//
// Fields:
//   - Host: hostname of the database server.
//   - Port: port number of the database server (default 5432).
//   - User: username for authentication.
//   - Password: password for authentication.
//   - DBName: target database name.
//   - SSLMode: SSL mode (e.g., "disable", "require").
//   - URL: computed DSN used by database/sql to connect.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string
}

// YahooConfig configures the chart API client.
type YahooConfig struct {
	BaseURL string
	Timeout time.Duration
}

// MissingError lists configuration keys that are required but empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// Load reads configuration from defaults, an optional .env file and the environment.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// Behavior:
//   - Uses a private viper instance, so repeated calls do not leak state.
//   - Constructs the PostgreSQL connection string (DSN) and, when the manifest
//     driver is postgres and no DSN is given, uses it as the manifest DSN.
//   - Calls Validate() and returns its error instead of exiting the process.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("S3_PREFIX", "raw")
	v.SetDefault("AWS_REGION", "sa-east-1")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("MANIFEST_DRIVER", "")
	v.SetDefault("YAHOO_BASE_URL", "https://query1.finance.yahoo.com")
	v.SetDefault("YAHOO_TIMEOUT", 30)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "b3lake")
	v.SetDefault("POSTGRES_SSLMODE", "disable")

	// Optionally read from .env if present (common in local dev)
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore error if no .env

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Bucket:         strings.TrimSpace(v.GetString("S3_BUCKET")),
			Prefix:         strings.Trim(v.GetString("S3_PREFIX"), "/"),
			Region:         v.GetString("AWS_REGION"),
			Endpoint:       v.GetString("S3_ENDPOINT"),
			ForcePathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
		},
		Data: DataConfig{
			Dir: v.GetString("DATA_DIR"),
		},
		Manifest: ManifestConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("MANIFEST_DRIVER"))),
			DSN:    v.GetString("MANIFEST_DSN"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetInt("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			DBName:   v.GetString("POSTGRES_DB"),
			SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		},
		Yahoo: YahooConfig{
			BaseURL: strings.TrimRight(v.GetString("YAHOO_BASE_URL"), "/"),
			Timeout: time.Duration(v.GetInt("YAHOO_TIMEOUT")) * time.Second,
		},
		UniverseFile: v.GetString("UNIVERSE_FILE"),
	}

	cfg.Postgres.URL = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
	if cfg.Manifest.Driver == "postgres" && cfg.Manifest.DSN == "" {
		cfg.Manifest.DSN = cfg.Postgres.URL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys every mode relies on.
//
// Behavior:
//   - Collects every missing key before returning, so one run reports them all.
//   - Rejects unknown manifest drivers.
//   - Returns *MissingError when keys are empty.
func (c *Config) Validate() error {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if c.Data.Dir == "" {
		missing = append(missing, "DATA_DIR")
	}
	if c.S3.Region == "" {
		missing = append(missing, "AWS_REGION")
	}
	switch c.Manifest.Driver {
	case "":
	case "postgres", "sqlite":
		if c.Manifest.DSN == "" {
			missing = append(missing, "MANIFEST_DSN")
		}
	default:
		return fmt.Errorf("unsupported MANIFEST_DRIVER %q (want postgres or sqlite)", c.Manifest.Driver)
	}

	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// RequireBucket reports a *MissingError when no bucket is configured.
// Commands that talk to the object store call it before doing any work.
func (c *Config) RequireBucket() error {
	if c.S3.Bucket == "" {
		return &MissingError{Keys: []string{"S3_BUCKET"}}
	}
	return nil
}
