package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BioHazard786/Coderoom/internal/utils"
	"gopkg.in/yaml.v3"
)

// Default configuration values (production)
const (
	DefaultServer           = "https://coderoom.qzz.io"
	DefaultSTUN             = "stun:stun.l.google.com:19302"
	DefaultTURN             = "" // Optional, empty by default
	DefaultAutosaveInterval = 30 * time.Second
)

// Config holds application configuration
type Config struct {
	// Server is the backend base URL, used for the REST API and the
	// collaboration channel.
	Server string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	AutosaveInterval time.Duration

	// Video controls whether this client publishes its own camera/mic.
	// Remote streams are always received.
	Video     bool
	VideoFile string
	AudioFile string

	// ConfigFile is the YAML file that was read, if any.
	ConfigFile string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigFile       string
	Server           string
	STUNServer       string
	TURNServer       string
	TURNUser         string
	TURNPass         string
	ForceRelay       bool
	AutosaveInterval time.Duration
	Video            *bool
	VideoFile        string
	AudioFile        string
}

// File is the on-disk YAML layout.
type File struct {
	Server           string `yaml:"server"`
	STUN             string `yaml:"stun"`
	TURN             string `yaml:"turn"`
	TURNUser         string `yaml:"turn_user"`
	TURNPass         string `yaml:"turn_pass"`
	ForceRelay       bool   `yaml:"force_relay"`
	AutosaveInterval string `yaml:"autosave_interval"`
	Video            *bool  `yaml:"video"`
	VideoFile        string `yaml:"video_file"`
	AudioFile        string `yaml:"audio_file"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv("CODEROOM_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}

	file, err := ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		file, path = &File{}, ""
	default:
		return nil, err
	}

	cfg := &Config{
		Server:     pick(opts.Server, os.Getenv("CODEROOM_SERVER"), file.Server, DefaultServer),
		STUNServer: pick(opts.STUNServer, os.Getenv("STUN_SERVER"), file.STUN, DefaultSTUN),
		TURNServer: pick(opts.TURNServer, os.Getenv("TURN_SERVER"), file.TURN, DefaultTURN),
		TURNUser:   pick(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.TURNUser),
		TURNPass:   pick(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.TURNPass),
		ForceRelay: opts.ForceRelay || file.ForceRelay,
		VideoFile:  pick(opts.VideoFile, file.VideoFile),
		AudioFile:  pick(opts.AudioFile, file.AudioFile),
		Video:      true,
		ConfigFile: path,
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")

	if _, err := url.Parse(cfg.Server); err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	// Video: CLI flag > config file > default (on)
	if opts.Video != nil {
		cfg.Video = *opts.Video
	} else if file.Video != nil {
		cfg.Video = *file.Video
	}

	// Autosave: CLI flag > env > config file > default
	cfg.AutosaveInterval = opts.AutosaveInterval
	if cfg.AutosaveInterval == 0 {
		raw := pick(os.Getenv("CODEROOM_AUTOSAVE"), file.AutosaveInterval)
		if raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid autosave interval %q: %w", raw, err)
			}
			cfg.AutosaveInterval = d
		}
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// ReadFile parses a YAML config file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/coderoom/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Dir is the per-user configuration directory.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "coderoom")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "coderoom")
	}
	return filepath.Join(os.TempDir(), "coderoom")
}

// StateDir holds logs and local drafts.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "coderoom")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "coderoom")
	}
	return filepath.Join(os.TempDir(), "coderoom-state")
}

// APIBaseURL is the root every REST path is joined to.
func (c *Config) APIBaseURL() string {
	return c.Server
}

// ChannelURL returns the collaboration channel endpoint for a room:
// wss://host/collaboration/{roomId}?token=...
func (c *Config) ChannelURL(roomID, token string) (string, error) {
	u, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/collaboration/" + roomID
	u.RawPath = ""
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/room/%s", c.Server, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayOnly reports whether ICE should be restricted to TURN relays.
func (c *Config) RelayOnly() bool {
	if c.GetTURNServers() == nil {
		return false
	}
	return c.ForceRelay || utils.ShouldForceRelay()
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
