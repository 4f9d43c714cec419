package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8640,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Events: EventsConfig{
			Enabled:    false,
			ListenAddr: "/ip4/0.0.0.0/tcp/30340",
			// Static peers are downstream consumers (webhook relays,
			// telemetry collectors). Format: libp2p multiaddr strings.
			Peers: []string{},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8740
	cfg.Events.ListenAddr = "/ip4/0.0.0.0/tcp/30341"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
