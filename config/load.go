package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Duration is a time.Duration that reads "30s" style strings from config files.
// Bare numbers are taken as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"'`)
	if raw == "" || raw == "null" {
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

const (
	envServiceToken = "JOBS_SERVICE_TOKEN"
	envDBPassword   = "JOBS_DB_PASSWORD"
	envDBDSN        = "JOBS_DB_DSN"
)

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), ext
}

// Load builds a Config from the defaults, then merges <name>.json5 and
// <name>.local.json5 over them, higher number wins:
//  1. DefaultConfig()
//  2. <name>.json5
//  3. <name>.local.json5
//  4. secrets from the environment (a .env file is loaded first when present)
//
// Missing files are skipped. An empty path only applies defaults and environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		prefix, ext := splitExt(path)
		for _, name := range []string{path, prefix + ".local" + ext} {
			data, err := os.ReadFile(name)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return cfg, fmt.Errorf("read config %s: %w", name, err)
			}

			var override Config
			if err := json5.Unmarshal(data, &override); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", name, err)
			}
			if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
				return cfg, fmt.Errorf("merge config %s: %w", name, err)
			}
			slog.Debug("merged config file", "path", name)
		}
	}

	// .env is optional, a missing file is not an error
	_ = godotenv.Load()
	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envServiceToken); v != "" {
		cfg.Service.Token = v
	}
	if v := os.Getenv(envDBPassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(envDBDSN); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Enabled = true
	}
}
