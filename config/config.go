// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol parameters: economic policy constants (stake thresholds,
//     slash rates, difficulty tuples) shared by every node of a deployment
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// RPC server
	RPC RPCConfig

	// Event emission (gossip)
	Events EventsConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// EventsConfig holds gossip event emitter settings.
type EventsConfig struct {
	Enabled    bool     `conf:"events.enabled"`
	ListenAddr string   `conf:"events.listen"` // libp2p multiaddr to listen on
	Peers      []string `conf:"events.peers"`  // static peers as multiaddrs
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.attestnet
//	macOS:   ~/Library/Application Support/AttestNet
//	Windows: %APPDATA%\AttestNet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".attestnet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "AttestNet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "AttestNet")
		}
		return filepath.Join(home, "AppData", "Roaming", "AttestNet")
	default:
		return filepath.Join(home, ".attestnet")
	}
}

// LedgerDir returns the staking ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, string(c.Network), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "attestnet.conf")
}
