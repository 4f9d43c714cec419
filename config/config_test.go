package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Mainnet(t *testing.T) {
	cfg := Default(Mainnet)
	if cfg.Network != Mainnet {
		t.Errorf("network = %q, want mainnet", cfg.Network)
	}
	if cfg.RPC.Port != 8640 {
		t.Errorf("rpc port = %d, want 8640", cfg.RPC.Port)
	}
	if !cfg.RPC.Enabled {
		t.Error("rpc should be enabled by default")
	}
	if cfg.Events.Enabled {
		t.Error("events should be disabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default mainnet config should validate: %v", err)
	}
}

func TestDefaults_Testnet(t *testing.T) {
	cfg := Default(Testnet)
	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if cfg.RPC.Port != 8740 {
		t.Errorf("rpc port = %d, want 8740", cfg.RPC.Port)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default testnet config should validate: %v", err)
	}
}

func TestLoadFile_MissingIsEmpty(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("LoadFile() on missing file = %v, want empty", values)
	}
}

func TestLoadFile_ParsesKeyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attestnet.conf")
	content := `# node settings
network = testnet

rpc.port = 9000
rpc.allowed = "127.0.0.1, 10.0.0.0/8"
log.level = 'debug'
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	want := map[string]string{
		"network":     "testnet",
		"rpc.port":    "9000",
		"rpc.allowed": "127.0.0.1, 10.0.0.0/8",
		"log.level":   "debug",
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("values[%q] = %q, want %q", k, values[k], v)
		}
	}
	if len(values) != len(want) {
		t.Errorf("parsed %d keys, want %d", len(values), len(want))
	}
}

func TestLoadFile_RejectsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("this is not a key value pair\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should reject a line without =")
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := Default(Mainnet)
	values := map[string]string{
		"network":        "testnet",
		"rpc.port":       "9123",
		"rpc.cors":       "https://a.example, https://b.example",
		"events.enabled": "yes",
		"events.listen":  "/ip4/0.0.0.0/tcp/31000",
		"log.json":       "true",
	}

	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if cfg.RPC.Port != 9123 {
		t.Errorf("rpc port = %d, want 9123", cfg.RPC.Port)
	}
	if len(cfg.RPC.CORSOrigins) != 2 || cfg.RPC.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.RPC.CORSOrigins)
	}
	if !cfg.Events.Enabled {
		t.Error("events.enabled = yes should parse as true")
	}
	if !cfg.Log.JSON {
		t.Error("log.json should be true")
	}
}

func TestApplyFileConfig_UnknownKey(t *testing.T) {
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, map[string]string{"mystery": "1"}); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestApplyFileConfig_BadPort(t *testing.T) {
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, map[string]string{"rpc.port": "not-a-port"}); err == nil {
		t.Error("non-numeric rpc.port should be rejected")
	}
}

func TestApplyFlags_Precedence(t *testing.T) {
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, map[string]string{"rpc.port": "9000", "log.level": "debug"}); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	// Flags override file values; unset flags leave them alone.
	f := &Flags{
		RPCPort: 9555,
		SetRPC:  true,
		RPC:     false,
	}
	ApplyFlags(cfg, f)

	if cfg.RPC.Port != 9555 {
		t.Errorf("rpc port = %d, want flag value 9555", cfg.RPC.Port)
	}
	if cfg.RPC.Enabled {
		t.Error("explicit --rpc=false should disable RPC")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want file value debug", cfg.Log.Level)
	}
}

func TestApplyFlags_UnsetBoolsDoNotOverride(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.Events.Enabled = true

	ApplyFlags(cfg, &Flags{})
	if !cfg.Events.Enabled {
		t.Error("unset --events flag must not override the config file")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "devnet" }},
		{"negative port", func(c *Config) { c.RPC.Port = -1 }},
		{"port too large", func(c *Config) { c.RPC.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad events listen", func(c *Config) {
			c.Events.Enabled = true
			c.Events.ListenAddr = "0.0.0.0:30340"
		}},
		{"bad events peer", func(c *Config) {
			c.Events.Enabled = true
			c.Events.Peers = []string{"not-a-multiaddr"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Mainnet)
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestValidate_EventsAddrIgnoredWhenDisabled(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.Events.Enabled = false
	cfg.Events.ListenAddr = "garbage"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled events should not validate the listen addr: %v", err)
	}
}

func TestParseStringList(t *testing.T) {
	got := parseStringList(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("parseStringList() = %v, want [a b c]", got)
	}
	if parseStringList("") != nil {
		t.Error("empty input should return nil")
	}
}

func TestDirsDerivedFromDataDir(t *testing.T) {
	cfg := Default(Testnet)
	cfg.DataDir = "/var/lib/attestnet"

	if got := cfg.LedgerDir(); got != filepath.Join("/var/lib/attestnet", "testnet", "ledger") {
		t.Errorf("LedgerDir() = %q", got)
	}
	if got := cfg.ConfigFile(); got != filepath.Join("/var/lib/attestnet", "attestnet.conf") {
		t.Errorf("ConfigFile() = %q", got)
	}
}
