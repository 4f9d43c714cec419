package config

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	if cfg.Events.Enabled {
		if _, err := multiaddr.NewMultiaddr(cfg.Events.ListenAddr); err != nil {
			return fmt.Errorf("events.listen %q is not a valid multiaddr: %w", cfg.Events.ListenAddr, err)
		}
		for i, p := range cfg.Events.Peers {
			if _, err := multiaddr.NewMultiaddr(p); err != nil {
				return fmt.Errorf("events.peers[%d] %q is not a valid multiaddr: %w", i, p, err)
			}
		}
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}

	return nil
}
