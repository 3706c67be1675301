// Package config loads warpcall settings from an optional config file and
// WARPCALL_* environment variables, with CLI flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/kkyr/fig"
)

const (
	EnvPrefix = "WARPCALL"
	FileName  = "warpcall.yaml"
)

// Config is the resolved client and relay configuration. Values come from
// defaults, then the config file, then WARPCALL_ env vars, then flags.
type Config struct {
	// Server is the relay websocket URL.
	Server string `fig:"server" default:"wss://warpcall.qzz.io/ws"`

	STUNServers []string `fig:"stun_servers" default:"[stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302]"`
	TURNServer  string   `fig:"turn_server"`
	TURNUser    string   `fig:"turn_user"`
	TURNPass    string   `fig:"turn_pass"`

	// ForceRelay restricts ICE to TURN relays when a TURN server is set.
	ForceRelay bool `fig:"force_relay"`

	DropEarlyCandidates bool `fig:"drop_early_candidates"`
	MaxEarlyCandidates  int  `fig:"max_early_candidates" default:"64"`

	// ListenAddr is where `warpcall relay` serves.
	ListenAddr string `fig:"listen_addr" default:":8080"`
}

// Options are CLI flag overrides. Zero values leave the loaded value alone.
type Options struct {
	ConfigFile string
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	ListenAddr string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (WARPCALL_*)
// 3. Config file, when present
// 4. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	var cfg Config
	if err := load(&cfg, opts.ConfigFile); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.Server != "" {
		cfg.Server = opts.Server
	}
	if opts.STUNServer != "" {
		cfg.STUNServers = []string{opts.STUNServer}
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		cfg.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		cfg.TURNPass = opts.TURNPass
	}
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}
	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}

	if cfg.MaxEarlyCandidates <= 0 {
		return nil, fmt.Errorf("max_early_candidates must be positive, got %d", cfg.MaxEarlyCandidates)
	}
	return &cfg, nil
}

// load fills cfg from path, or from the default search dirs when path is
// empty. A missing default file is not an error.
func load(cfg *Config, path string) error {
	if path != "" {
		return fig.Load(cfg,
			fig.File(filepath.Base(path)),
			fig.Dirs(filepath.Dir(path)),
			fig.UseEnv(EnvPrefix))
	}

	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "warpcall"))
	}
	err := fig.Load(cfg, fig.File(FileName), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		*cfg = Config{}
		return fig.Load(cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	return err
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// ICEServers lists the STUN servers and, when set, the TURN server.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if turn := c.TURNServers(); turn != nil {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// PeerConfiguration is the ICE setup for new peer connections. Relay-only
// mode needs a TURN server and is turned on by ForceRelay or when the host
// looks to be behind a VPN or CGNAT.
func (c *Config) PeerConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: c.ICEServers(),
		RelayOnly:  c.TURNServer != "" && (c.ForceRelay || ShouldForceRelay()),
	}
}
