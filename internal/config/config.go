// Package config loads daemon configuration from an optional TOML file and
// environment variables. Environment variables always win over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DatabaseURL string // WEALTHD_DATABASE_URL (required)
	HTTPAddr    string // WEALTHD_HTTP_ADDR (default ":8080")
	NATSURL     string // WEALTHD_NATS_URL (optional, empty = no events)
	AuthToken   string // WEALTHD_AUTH_TOKEN (optional, empty = auth disabled)
	Currency    string // WEALTHD_CURRENCY (default "EUR"; valuation target)

	// Worker settings
	PollInterval time.Duration // WEALTHD_POLL_INTERVAL (default 5s)
	LockTimeout  time.Duration // WEALTHD_LOCK_TIMEOUT (default 5m)
	MaxAttempts  int           // WEALTHD_MAX_ATTEMPTS (default 3)

	// Snapshot settings
	SnapshotInterval   time.Duration // WEALTHD_SNAPSHOT_INTERVAL (default 3m; 0 = disabled)
	SnapshotS3Bucket   string        // WEALTHD_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // WEALTHD_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // WEALTHD_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // WEALTHD_SNAPSHOT_S3_KEY (default "wealthd/snapshot.jsonl")
}

// fileConfig mirrors Config for the optional TOML file named by
// WEALTHD_CONFIG.
type fileConfig struct {
	DatabaseURL string `toml:"database_url"`
	HTTPAddr    string `toml:"http_addr"`
	NATSURL     string `toml:"nats_url"`
	AuthToken   string `toml:"auth_token"`
	Currency    string `toml:"currency"`

	Worker struct {
		PollInterval string `toml:"poll_interval"`
		LockTimeout  string `toml:"lock_timeout"`
		MaxAttempts  int    `toml:"max_attempts"`
	} `toml:"worker"`

	Snapshot struct {
		Interval   string `toml:"interval"`
		S3Bucket   string `toml:"s3_bucket"`
		S3Endpoint string `toml:"s3_endpoint"`
		S3Region   string `toml:"s3_region"`
		S3Key      string `toml:"s3_key"`
	} `toml:"snapshot"`
}

// Load resolves configuration: defaults, then the TOML file (if any), then
// environment variables.
func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:         ":8080",
		Currency:         "EUR",
		PollInterval:     5 * time.Second,
		LockTimeout:      5 * time.Minute,
		MaxAttempts:      3,
		SnapshotInterval: 3 * time.Minute,
		SnapshotS3Region: "us-east-1",
		SnapshotS3Key:    "wealthd/snapshot.jsonl",
	}

	if path := os.Getenv("WEALTHD_CONFIG"); path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("WEALTHD_DATABASE_URL is required")
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.NATSURL, fc.NATSURL)
	setString(&c.AuthToken, fc.AuthToken)
	setString(&c.Currency, fc.Currency)
	if fc.Worker.MaxAttempts > 0 {
		c.MaxAttempts = fc.Worker.MaxAttempts
	}
	if err := setDuration(&c.PollInterval, fc.Worker.PollInterval, "worker.poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&c.LockTimeout, fc.Worker.LockTimeout, "worker.lock_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.SnapshotInterval, fc.Snapshot.Interval, "snapshot.interval"); err != nil {
		return err
	}
	setString(&c.SnapshotS3Bucket, fc.Snapshot.S3Bucket)
	setString(&c.SnapshotS3Endpoint, fc.Snapshot.S3Endpoint)
	setString(&c.SnapshotS3Region, fc.Snapshot.S3Region)
	setString(&c.SnapshotS3Key, fc.Snapshot.S3Key)
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DatabaseURL, os.Getenv("WEALTHD_DATABASE_URL"))
	setString(&c.HTTPAddr, os.Getenv("WEALTHD_HTTP_ADDR"))
	setString(&c.NATSURL, os.Getenv("WEALTHD_NATS_URL"))
	setString(&c.AuthToken, os.Getenv("WEALTHD_AUTH_TOKEN"))
	setString(&c.Currency, os.Getenv("WEALTHD_CURRENCY"))

	if v := os.Getenv("WEALTHD_MAX_ATTEMPTS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("WEALTHD_MAX_ATTEMPTS: invalid value %q", v)
		}
		c.MaxAttempts = n
	}
	if err := setDuration(&c.PollInterval, os.Getenv("WEALTHD_POLL_INTERVAL"), "WEALTHD_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.LockTimeout, os.Getenv("WEALTHD_LOCK_TIMEOUT"), "WEALTHD_LOCK_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.SnapshotInterval, os.Getenv("WEALTHD_SNAPSHOT_INTERVAL"), "WEALTHD_SNAPSHOT_INTERVAL"); err != nil {
		return err
	}
	setString(&c.SnapshotS3Bucket, os.Getenv("WEALTHD_SNAPSHOT_S3_BUCKET"))
	setString(&c.SnapshotS3Endpoint, os.Getenv("WEALTHD_SNAPSHOT_S3_ENDPOINT"))
	setString(&c.SnapshotS3Region, os.Getenv("WEALTHD_SNAPSHOT_S3_REGION"))
	setString(&c.SnapshotS3Key, os.Getenv("WEALTHD_SNAPSHOT_S3_KEY"))
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
