package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort      = "9871"
	DefaultTargetURL = "https://chatgpt.com/"
)

type RuntimeConfig struct {
	Bind          string
	Port          string
	Token         string
	StateDir      string
	ProfileDir    string
	Headless      bool
	ChromeBinary  string
	CdpURL        string
	TargetURL     string
	PanelStrategy string
	HumanClicks   bool

	// Upper bounds for the wait-for-condition polls that replace fixed delays.
	PanelTimeout   time.Duration
	ConfirmTimeout time.Duration
	SettleTimeout  time.Duration
	PollInterval   time.Duration
	MaxPollDelay   time.Duration

	// Pause between two deletions so the chat backend is not hammered.
	InterItemDelay  time.Duration
	ChromeTimeout   time.Duration
	ShutdownTimeout time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envMillisOr reads a non-negative millisecond count.
func envMillisOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

// envTimeoutOr reads a positive millisecond count. Zero would mean no bound.
func envTimeoutOr(key string, fallback time.Duration) time.Duration {
	if d := envMillisOr(key, fallback); d > 0 {
		return d
	}
	return fallback
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

// BaseURL is where popup-side commands reach a running server.
func (c *RuntimeConfig) BaseURL() string {
	host := c.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + c.Port
}

func (c *RuntimeConfig) OptionsPath() string {
	return filepath.Join(c.StateDir, "options.yaml")
}

type FileConfig struct {
	Port           string `json:"port"`
	Token          string `json:"token,omitempty"`
	StateDir       string `json:"stateDir"`
	ProfileDir     string `json:"profileDir"`
	Headless       *bool  `json:"headless,omitempty"`
	CdpURL         string `json:"cdpUrl,omitempty"`
	TargetURL      string `json:"targetUrl,omitempty"`
	PanelStrategy  string `json:"panelStrategy,omitempty"`
	HumanClicks    bool   `json:"humanClicks,omitempty"`
	ConfirmMs      int    `json:"confirmMs,omitempty"`
	InterItemMs    int    `json:"interItemMs,omitempty"`
	PanelTimeoutMs int    `json:"panelTimeoutMs,omitempty"`
}

func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".scrubber", "config.json")
}

// ConfigPath is the file Load reads: SCRUBBER_CONFIG or the default location.
func ConfigPath() string {
	return envOr("SCRUBBER_CONFIG", DefaultConfigPath())
}

func Load() *RuntimeConfig {
	// A local .env only fills variables the shell did not set.
	_ = godotenv.Load()

	cfg := &RuntimeConfig{
		Bind:            envOr("SCRUBBER_BIND", "127.0.0.1"),
		Port:            envOr("SCRUBBER_PORT", DefaultPort),
		Token:           os.Getenv("SCRUBBER_TOKEN"),
		StateDir:        envOr("SCRUBBER_STATE_DIR", filepath.Join(homeDir(), ".scrubber")),
		ProfileDir:      envOr("SCRUBBER_PROFILE", filepath.Join(homeDir(), ".scrubber", "chrome-profile")),
		Headless:        envBoolOr("SCRUBBER_HEADLESS", false),
		ChromeBinary:    os.Getenv("CHROME_BINARY"),
		CdpURL:          os.Getenv("CDP_URL"),
		TargetURL:       envOr("SCRUBBER_TARGET_URL", DefaultTargetURL),
		PanelStrategy:   envOr("SCRUBBER_PANEL_STRATEGY", "layered"),
		HumanClicks:     envBoolOr("SCRUBBER_HUMAN_CLICKS", false),
		PanelTimeout:    envTimeoutOr("SCRUBBER_PANEL_TIMEOUT_MS", 5*time.Second),
		ConfirmTimeout:  envTimeoutOr("SCRUBBER_CONFIRM_TIMEOUT_MS", 3*time.Second),
		SettleTimeout:   envTimeoutOr("SCRUBBER_SETTLE_TIMEOUT_MS", 4*time.Second),
		PollInterval:    100 * time.Millisecond,
		MaxPollDelay:    800 * time.Millisecond,
		InterItemDelay:  envMillisOr("SCRUBBER_INTER_ITEM_MS", 1200*time.Millisecond),
		ChromeTimeout:   30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return cfg
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg
	}
	applyFileConfig(cfg, fc)
	return cfg
}

// applyFileConfig overlays file values; environment variables always win.
func applyFileConfig(cfg *RuntimeConfig, fc FileConfig) {
	if fc.Port != "" && os.Getenv("SCRUBBER_PORT") == "" {
		cfg.Port = fc.Port
	}
	if fc.Token != "" && os.Getenv("SCRUBBER_TOKEN") == "" {
		cfg.Token = fc.Token
	}
	if fc.StateDir != "" && os.Getenv("SCRUBBER_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.ProfileDir != "" && os.Getenv("SCRUBBER_PROFILE") == "" {
		cfg.ProfileDir = fc.ProfileDir
	}
	if fc.Headless != nil && os.Getenv("SCRUBBER_HEADLESS") == "" {
		cfg.Headless = *fc.Headless
	}
	if fc.CdpURL != "" && os.Getenv("CDP_URL") == "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.TargetURL != "" && os.Getenv("SCRUBBER_TARGET_URL") == "" {
		cfg.TargetURL = fc.TargetURL
	}
	if fc.PanelStrategy != "" && os.Getenv("SCRUBBER_PANEL_STRATEGY") == "" {
		cfg.PanelStrategy = fc.PanelStrategy
	}
	if fc.HumanClicks && os.Getenv("SCRUBBER_HUMAN_CLICKS") == "" {
		cfg.HumanClicks = true
	}
	if fc.ConfirmMs > 0 && os.Getenv("SCRUBBER_CONFIRM_TIMEOUT_MS") == "" {
		cfg.ConfirmTimeout = time.Duration(fc.ConfirmMs) * time.Millisecond
	}
	if fc.InterItemMs > 0 && os.Getenv("SCRUBBER_INTER_ITEM_MS") == "" {
		cfg.InterItemDelay = time.Duration(fc.InterItemMs) * time.Millisecond
	}
	if fc.PanelTimeoutMs > 0 && os.Getenv("SCRUBBER_PANEL_TIMEOUT_MS") == "" {
		cfg.PanelTimeout = time.Duration(fc.PanelTimeoutMs) * time.Millisecond
	}
}

func DefaultFileConfig() FileConfig {
	h := false
	return FileConfig{
		Port:          DefaultPort,
		StateDir:      filepath.Join(homeDir(), ".scrubber"),
		ProfileDir:    filepath.Join(homeDir(), ".scrubber", "chrome-profile"),
		Headless:      &h,
		TargetURL:     DefaultTargetURL,
		PanelStrategy: "layered",
		ConfirmMs:     3000,
		InterItemMs:   1200,
	}
}

// WriteDefault creates the config file at path. It refuses to overwrite
// unless force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(DefaultFileConfig(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *RuntimeConfig) Describe(w io.Writer) {
	_, _ = fmt.Fprintf(w, "  Listen:     %s\n", c.ListenAddr())
	_, _ = fmt.Fprintf(w, "  Token:      %s\n", MaskToken(c.Token))
	_, _ = fmt.Fprintf(w, "  State Dir:  %s\n", c.StateDir)
	_, _ = fmt.Fprintf(w, "  Profile:    %s\n", c.ProfileDir)
	_, _ = fmt.Fprintf(w, "  Headless:   %v\n", c.Headless)
	_, _ = fmt.Fprintf(w, "  CDP URL:    %s\n", c.CdpURL)
	_, _ = fmt.Fprintf(w, "  Target:     %s\n", c.TargetURL)
	_, _ = fmt.Fprintf(w, "  Panel:      %s\n", c.PanelStrategy)
	_, _ = fmt.Fprintf(w, "  Timeouts:   panel=%v confirm=%v settle=%v\n", c.PanelTimeout, c.ConfirmTimeout, c.SettleTimeout)
	_, _ = fmt.Fprintf(w, "  Delay:      %v between deletions\n", c.InterItemDelay)
}

func MaskToken(t string) string {
	if t == "" {
		return "(none)"
	}
	if len(t) <= 8 {
		return "***"
	}
	return t[:4] + "..." + t[len(t)-4:]
}
