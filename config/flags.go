package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Events
	Events       bool
	EventsListen string
	EventsPeers  string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetRPC     bool
	SetEvents  bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("attestnet", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Events
	fs.BoolVar(&f.Events, "events", false, "Enable gossip event emission")
	fs.StringVar(&f.EventsListen, "events-listen", "", "Event emitter listen multiaddr")
	fs.StringVar(&f.EventsPeers, "events-peers", "", "Static event peers as comma-separated multiaddrs")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = printUsage

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "rpc":
			f.SetRPC = true
		case "events":
			f.SetEvents = true
		case "log-json":
			f.SetLogJSON = true
		}
	})

	f.Args = fs.Args()
	return f
}

// ApplyFlags applies command-line flags on top of a Config.
// Flags take precedence over config file values.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	if f.SetEvents {
		cfg.Events.Enabled = f.Events
	}
	if f.EventsListen != "" {
		cfg.Events.ListenAddr = f.EventsListen
	}
	if f.EventsPeers != "" {
		cfg.Events.Peers = parseStringList(f.EventsPeers)
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load builds the effective configuration: defaults, then config file,
// then command-line flags.
func Load() (*Config, *Flags, error) {
	f := ParseFlags()

	if f.Help {
		printUsage()
		os.Exit(0)
	}
	if f.Version {
		fmt.Println("attestnet", Version)
		os.Exit(0)
	}

	network := Mainnet
	if f.Network == string(Testnet) {
		network = Testnet
	}
	cfg := Default(network)

	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	path := f.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config file %s: %w", path, err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, nil, err
	}

	ApplyFlags(cfg, f)

	if err := Validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, f, nil
}

// Version is the build version string, set at link time.
var Version = "dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `AttestNet verification node

Usage:
  attestnetd [flags]

Flags:
  --network <name>         Network type: mainnet or testnet
  --datadir <path>         Data directory
  -c, --config <path>      Config file path
  --rpc                    Enable RPC server (default true)
  --rpc-addr <addr>        RPC listen address
  --rpc-port <port>        RPC listen port
  --rpc-allowed <ips>      Comma-separated allowed client IPs
  --rpc-cors <origins>     Comma-separated CORS origins
  --events                 Enable gossip event emission
  --events-listen <addr>   Event emitter listen multiaddr
  --events-peers <addrs>   Static event peers (comma-separated multiaddrs)
  --log-level <level>      debug, info, warn, or error
  --log-file <path>        Log file path
  --log-json               Output logs as JSON
  -h, --help               Show this help
  --version                Show version
`)
}
