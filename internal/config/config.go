// Package config loads client settings. Values are layered: built-in
// defaults, then an optional YAML file, then TASKSPARKLE_* environment
// variables. Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const envPrefix = "TASKSPARKLE_"

// Points are the score deltas for the scoring actions.
type Points struct {
	Done   int `yaml:"done"`
	Missed int `yaml:"missed"`
	Idle   int `yaml:"idle"`
}

// S3 holds S3-compatible storage settings for backups.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Complete reports whether a bucket and credentials are set.
func (c S3) Complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	APIURL    string `yaml:"api_url"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Passphrase, when set, encrypts the stored session and task status.
	Passphrase string `yaml:"passphrase"`

	Points Points `yaml:"points"`
	Backup S3     `yaml:"backup"`
}

func Default() *Config {
	return &Config{
		APIURL:    "http://localhost:3000",
		DBPath:    defaultDBPath(),
		LogLevel:  "warn",
		LogFormat: "text",
		Points: Points{
			Done:   1,
			Missed: -2,
			Idle:   -2,
		},
		Backup: S3{Region: "auto"},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tasksparkle.db"
	}
	return filepath.Join(dir, "tasksparkle", "state.db")
}

// Load builds the configuration. path may be empty, in which case
// TASKSPARKLE_CONFIG names the file, if anything does. A named file that
// does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.APIURL = getEnvString("API_URL", c.APIURL)
	c.DBPath = getEnvString("DB_PATH", c.DBPath)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvString("LOG_FORMAT", c.LogFormat)
	c.Passphrase = getEnvString("PASSPHRASE", c.Passphrase)

	var err error
	if c.Points.Done, err = getEnvInt("POINTS_DONE", c.Points.Done); err != nil {
		return err
	}
	if c.Points.Missed, err = getEnvInt("POINTS_MISSED", c.Points.Missed); err != nil {
		return err
	}
	if c.Points.Idle, err = getEnvInt("POINTS_IDLE", c.Points.Idle); err != nil {
		return err
	}

	c.Backup.Endpoint = getEnvString("S3_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Bucket = getEnvString("S3_BUCKET", c.Backup.Bucket)
	c.Backup.Region = getEnvString("S3_REGION", c.Backup.Region)
	c.Backup.AccessKey = getEnvString("S3_ACCESS_KEY", c.Backup.AccessKey)
	c.Backup.SecretKey = getEnvString("S3_SECRET_KEY", c.Backup.SecretKey)
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %q is not an integer", envPrefix, key, v)
	}
	return i, nil
}
