/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SupportedTypes lists the database types the manager can connect to.
var SupportedTypes = []string{"mysql", "postgres", "sqlite"}

// DefaultConfig returns a Config populated with default connection settings.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		LogConfig:        LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML config file on top of the defaults, loads the given
// dotenv files (".env" when present and none are given) and applies DB_*
// environment overrides. An empty path skips the YAML step.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg.ConnectionConfig.ApplyEnv()
	if err := cfg.ConnectionConfig.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	// godotenv never overrides variables that are already set
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", files, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from DB_* environment variables.
func (c *ConnectionConfig) ApplyEnv() {
	envString("DB_TYPE", &c.Type)
	envString("DB_HOST", &c.Host)
	envInt("DB_PORT", &c.Port)
	envString("DB_USERNAME", &c.Username)
	envString("DB_PASSWORD", &c.Password)
	envString("DB_NAME", &c.DBName)
	envString("DB_DSN", &c.DSN)
	envString("DB_SSLMODE", &c.SSLMode)

	envInt("DB_MAX_IDLE_CONNS", &c.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &c.MaxOpenConns)
	envSeconds("DB_CONN_MAX_LIFETIME", &c.ConnMaxLifetime)
	envSeconds("DB_CONN_MAX_IDLE_TIME", &c.ConnMaxIdleTime)

	envBool("DB_ENABLE_QUERY_LOG", &c.EnableQueryLog)
	envString("DB_QUERY_LOG_FORMAT", &c.QueryLogFormat)
	envBool("DB_ENABLE_METRICS", &c.EnableMetrics)
}

// Validate checks that the configuration can be used to open a connection.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return errors.New("database configuration cannot be empty")
	}
	supported := false
	for _, t := range SupportedTypes {
		if c.Type == t {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database type: %q, supported types: %v", c.Type, SupportedTypes)
	}
	if c.Type != "sqlite" && c.DSN == "" && c.Host == "" {
		return fmt.Errorf("database host is required for %s", c.Type)
	}
	if c.DSN == "" && c.DBName == "" {
		return errors.New("database name is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection pool sizes must not be negative")
	}
	switch c.QueryLogFormat {
	case "", QueryLogBunDebug, QueryLogColor:
	default:
		return fmt.Errorf("unsupported query log format: %q", c.QueryLogFormat)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
