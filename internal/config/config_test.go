package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with an empty user config
// dir, so no warpcall.yaml is found.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "wss://warpcall.qzz.io/ws", cfg.Server)
	assert.Equal(t, []string{"stun:stun1.l.google.com:19302", "stun:stun2.l.google.com:19302"}, cfg.STUNServers)
	assert.Equal(t, 64, cfg.MaxEarlyCandidates)
	assert.False(t, cfg.DropEarlyCandidates)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.TURNServers())
}

func TestLoadEnv(t *testing.T) {
	isolate(t)
	t.Setenv("WARPCALL_SERVER", "ws://localhost:9000/ws")
	t.Setenv("WARPCALL_DROP_EARLY_CANDIDATES", "true")
	t.Setenv("WARPCALL_MAX_EARLY_CANDIDATES", "8")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.Server)
	assert.True(t, cfg.DropEarlyCandidates)
	assert.Equal(t, 8, cfg.MaxEarlyCandidates)
}

func TestLoadUserConfigDir(t *testing.T) {
	isolate(t)
	t.Setenv("WARPCALL_LISTEN_ADDR", ":9100")

	dir, err := os.UserConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "warpcall"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warpcall", FileName), []byte("server: ws://home/ws\n"), 0o644))

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ws://home/ws", cfg.Server)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 64, cfg.MaxEarlyCandidates)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoadFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ws://file/ws\nturn_server: turn.example.com\nturn_user: u\n"), 0o644))

	cfg, err := Load(Options{ConfigFile: path, TURNPass: "p", STUNServer: "stun:flag:3478"})
	require.NoError(t, err)

	assert.Equal(t, "ws://file/ws", cfg.Server)
	assert.Equal(t, []string{"stun:flag:3478"}, cfg.STUNServers)

	servers := cfg.ICEServers()
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:flag:3478"}, servers[0].URLs)
	assert.Equal(t, []string{
		"turn:turn.example.com:3478?transport=udp",
		"turn:turn.example.com:3478?transport=tcp",
		"turns:turn.example.com:5349?transport=tcp",
	}, servers[1].URLs)
	assert.Equal(t, "u", servers[1].Username)
	assert.Equal(t, "p", servers[1].Credential)
}

func TestLoadRejectsBadBuffer(t *testing.T) {
	isolate(t)
	t.Setenv("WARPCALL_MAX_EARLY_CANDIDATES", "-1")

	_, err := Load(Options{})
	assert.Error(t, err)
}

func TestPeerConfigurationNeedsTURNForRelay(t *testing.T) {
	cfg := &Config{STUNServers: []string{"stun:s"}, ForceRelay: true}
	assert.False(t, cfg.PeerConfiguration().RelayOnly)

	cfg.TURNServer = "turn.example.com"
	assert.True(t, cfg.PeerConfiguration().RelayOnly)
}

func TestVPNHeuristics(t *testing.T) {
	assert.True(t, vpnInterface("wg0"))
	assert.True(t, vpnInterface("utun3"))
	assert.False(t, vpnInterface("eth0"))

	assert.True(t, inCGNAT(&net.IPNet{IP: net.ParseIP("100.100.1.2")}))
	assert.False(t, inCGNAT(&net.IPNet{IP: net.ParseIP("192.168.1.2")}))
	assert.False(t, inCGNAT(&net.IPAddr{}))
}
