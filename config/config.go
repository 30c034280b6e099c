// Package config holds the server's startup configuration, loaded from
// flags with environment-variable overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Port    int
	RootDir string
	Workers int

	// Credential store settings. SQLPoolSize 0 disables the store and
	// every dynamic request that needs it.
	SQLHost     string
	SQLPort     int
	SQLUser     string
	SQLPassword string
	SQLDatabase string
	SQLPoolSize int

	// ModelPath points at a JSON weights file; empty means the built-in
	// default model.
	ModelPath string

	AccessLog bool
}

// New loads configuration from flags, then applies env overrides.
func New() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 9006, "server port")
	flag.StringVar(&cfg.RootDir, "root", "./resources", "document root directory")
	flag.IntVar(&cfg.Workers, "workers", 8, "worker goroutine count")

	flag.StringVar(&cfg.SQLHost, "sql-host", "localhost", "credential store host")
	flag.IntVar(&cfg.SQLPort, "sql-port", 3306, "credential store port")
	flag.StringVar(&cfg.SQLUser, "sql-user", "root", "credential store user")
	flag.StringVar(&cfg.SQLPassword, "sql-password", "root", "credential store password")
	flag.StringVar(&cfg.SQLDatabase, "sql-database", "webserver", "credential store database")
	flag.IntVar(&cfg.SQLPoolSize, "sql-pool", 8, "credential store connection pool size (0 disables)")

	flag.StringVar(&cfg.ModelPath, "model", "", "JSON model weights file (empty = built-in)")
	flag.BoolVar(&cfg.AccessLog, "access-log", true, "log each served request")

	flag.Parse()

	cfg.applyEnv()
	return cfg
}

// applyEnv lets the environment override flag values, which is how the
// server is configured when run under a process manager.
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("SERVER_ROOT"); v != "" {
		c.RootDir = v
	}
	if v := os.Getenv("SQL_PASSWORD"); v != "" {
		c.SQLPassword = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range [1024, 65535]", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.SQLPoolSize < 0 {
		return fmt.Errorf("config: sql-pool must be non-negative, got %d", c.SQLPoolSize)
	}
	info, err := os.Stat(c.RootDir)
	if err != nil {
		return fmt.Errorf("config: root dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: root %s is not a directory", c.RootDir)
	}
	return nil
}
