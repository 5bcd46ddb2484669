// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Environment variables configuring the server.
const (
	EnvLog                    = "RDAP_LOG"
	EnvListenAddr             = "RDAP_SRV_LISTEN_ADDR"
	EnvListenPort             = "RDAP_SRV_LISTEN_PORT"
	EnvStorage                = "RDAP_SRV_STORAGE"
	EnvDataDir                = "RDAP_SRV_DATA_DIR"
	EnvAutoReload             = "RDAP_SRV_AUTO_RELOAD"
	EnvBootstrap              = "RDAP_SRV_BOOTSTRAP"
	EnvDomainSearchByName     = "RDAP_SRV_DOMAIN_SEARCH_BY_NAME"
	EnvNameserverSearchByName = "RDAP_SRV_NAMESERVER_SEARCH_BY_NAME"
	EnvNameserverSearchByIP   = "RDAP_SRV_NAMESERVER_SEARCH_BY_IP"
	EnvDomainSearchByNSIP     = "RDAP_SRV_DOMAIN_SEARCH_BY_NS_IP"
	EnvJSContactConversion    = "RDAP_SRV_JSCONTACT_CONVERSION"
)

// A Config holds the server's runtime configuration.
type Config struct {
	// ListenAddr is the interface to bind, empty for all interfaces.
	ListenAddr string

	// ListenPort is the port to bind; 0 lets the OS choose.
	ListenPort uint16

	// Storage selects the storage backend: "memory" (default) or "sqlite".
	Storage string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// DataDir is the directory of RDAP data files loaded at startup and on
	// reload.
	DataDir string

	// AutoReload watches the data directory for reload/update sentinels.
	AutoReload bool

	// Bootstrap makes this server act as a bootstrap source: lookups which
	// miss the data consult the error overlays and synthesise redirects.
	Bootstrap bool

	// Search feature switches. A disabled search endpoint answers HTTP 501.
	DomainSearchByName     bool
	NameserverSearchByName bool
	NameserverSearchByIP   bool
	DomainSearchByNSIP     bool

	Log *logrus.Logger
}

// NewConfigFromEnv builds a Config from the RDAP_SRV_* environment
// variables.
func NewConfigFromEnv() (*Config, error) {
	config := &Config{
		ListenAddr: os.Getenv(EnvListenAddr),
		Storage:    envOr(EnvStorage, "memory"),
		DataDir:    envOr(EnvDataDir, "srv/data"),
		Log:        newLogger(),
	}

	if port := os.Getenv(EnvListenPort); port != "" {
		parsed, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvListenPort, err)
		}

		config.ListenPort = uint16(parsed)
	}

	var err error
	if config.AutoReload, err = envBool(EnvAutoReload); err != nil {
		return nil, err
	}
	if config.Bootstrap, err = envBool(EnvBootstrap); err != nil {
		return nil, err
	}
	if config.DomainSearchByName, err = envBool(EnvDomainSearchByName); err != nil {
		return nil, err
	}
	if config.NameserverSearchByName, err = envBool(EnvNameserverSearchByName); err != nil {
		return nil, err
	}
	if config.NameserverSearchByIP, err = envBool(EnvNameserverSearchByIP); err != nil {
		return nil, err
	}
	if config.DomainSearchByNSIP, err = envBool(EnvDomainSearchByNSIP); err != nil {
		return nil, err
	}

	if config.Storage == "sqlite" {
		config.SQLitePath = envOr("RDAP_SRV_DB_URL", "rdap.db")
	}

	return config, nil
}

// Logger returns the configured logger, defaulting to a new one.
func (c *Config) Logger() *logrus.Logger {
	if c.Log == nil {
		c.Log = newLogger()
	}

	return c.Log
}

func newLogger() *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(envOr(EnvLog, "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

func envOr(name string, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}

	return fallback
}

func envBool(name string) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return false, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}

	return parsed, nil
}
