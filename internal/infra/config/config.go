package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"devtools-bridge/internal/domain"
)

// envPrefix prefixes every environment override.
const envPrefix = "DEVTOOLSBRIDGE_"

// encPrefix marks an encrypted config value.
const encPrefix = "enc:"

// Config is the top-level application configuration.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Launcher  LauncherConfig  `yaml:"launcher"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// BridgeConfig holds settings for one bridged session.
type BridgeConfig struct {
	Endpoint         string        `yaml:"endpoint"` // ws:// URL; empty = use discovery
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxFrameSize     int64         `yaml:"max_frame_size"`
	KeyInterval      time.Duration `yaml:"key_interval"`
	CapabilityScript string        `yaml:"capability_script,omitempty"` // path to a replacement library

	// ExtraHeaders are sent with every page request. Values may be
	// "enc:"-encrypted.
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// DiscoveryConfig holds settings for the target discovery endpoint.
type DiscoveryConfig struct {
	URL            string               `yaml:"url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for discovery requests.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LauncherConfig holds settings for starting a local browser with
// remote debugging enabled.
type LauncherConfig struct {
	ExecPath     string        `yaml:"exec_path,omitempty"` // empty = search PATH
	UserDataDir  string        `yaml:"user_data_dir,omitempty"`
	Headless     bool          `yaml:"headless"`
	Port         int           `yaml:"port"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// ArchiveConfig holds the network traffic archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig holds the ops HTTP listener settings. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Output   string `yaml:"output,omitempty"` // stdout exporter target file; empty = stdout
}

// defaultDataDir returns the persistent data directory under
// $HOME/.devtools-bridge. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".devtools-bridge")
}

// DefaultPath is where the CLI looks for its config file.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Bridge: BridgeConfig{
			CommandTimeout:   30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			MaxFrameSize:     64 << 20,
			KeyInterval:      20 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			URL:     "http://127.0.0.1:9222",
			Timeout: 5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 3,
				Timeout:     30 * time.Second,
				Interval:    time.Minute,
			},
		},
		Launcher: LauncherConfig{
			Headless:     true,
			Port:         9222,
			StartTimeout: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: filepath.Join(defaultDataDir(), "traffic.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass picks up the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, "parse: "+err.Error())
	}

	if len(cfg.Includes) > 0 {
		inc := newIncluder(absPath)
		if err := inc.apply(cfg, filepath.Dir(absPath), 0); err != nil {
			return nil, err
		}
		// The main file wins over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, "parse: "+err.Error())
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv(envPrefix+"CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

// ApplyEnvOverrides maps DEVTOOLSBRIDGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	envString("ENDPOINT", &cfg.Bridge.Endpoint)
	envDuration("COMMAND_TIMEOUT", &cfg.Bridge.CommandTimeout)
	envDuration("HANDSHAKE_TIMEOUT", &cfg.Bridge.HandshakeTimeout)
	envDuration("KEY_INTERVAL", &cfg.Bridge.KeyInterval)
	envString("CAPABILITY_SCRIPT", &cfg.Bridge.CapabilityScript)
	if v := os.Getenv(envPrefix + "MAX_FRAME_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Bridge.MaxFrameSize = n
		}
	}
	// DEVTOOLSBRIDGE_EXTRA_HEADERS="X-Trace=1,Authorization=enc:..."
	if v := os.Getenv(envPrefix + "EXTRA_HEADERS"); v != "" {
		if cfg.Bridge.ExtraHeaders == nil {
			cfg.Bridge.ExtraHeaders = make(map[string]string)
		}
		for _, pair := range splitAndTrim(v, ",") {
			k, val, ok := strings.Cut(pair, "=")
			if ok && strings.TrimSpace(k) != "" {
				cfg.Bridge.ExtraHeaders[strings.TrimSpace(k)] = strings.TrimSpace(val)
			}
		}
	}

	envString("DISCOVERY_URL", &cfg.Discovery.URL)
	envDuration("DISCOVERY_TIMEOUT", &cfg.Discovery.Timeout)

	envString("LAUNCHER_EXEC_PATH", &cfg.Launcher.ExecPath)
	if v := os.Getenv(envPrefix + "LAUNCHER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Launcher.Port = n
		}
	}

	if v := os.Getenv(envPrefix + "ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv(envPrefix + "ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true"
	}

	envString("METRICS_ADDR", &cfg.Metrics.Addr)

	envString("LOGGER_LEVEL", &cfg.Logger.Level)
	envString("LOGGER_FORMAT", &cfg.Logger.Format)
	envString("LOGGER_OUTPUT", &cfg.Logger.Output)

	if v := os.Getenv(envPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	envString("TRACER_EXPORTER", &cfg.Tracer.Exporter)
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets replaces "enc:..." extra header values with their
// plaintext. Encrypted values without a passphrase are an error.
func decryptSecrets(cfg *Config, passphrase string) error {
	for name, v := range cfg.Bridge.ExtraHeaders {
		if !strings.HasPrefix(v, encPrefix) {
			continue
		}
		if passphrase == "" {
			return domain.NewDomainError("config.decryptSecrets", domain.ErrDecryption,
				fmt.Sprintf("header %s is encrypted but %sCONFIG_KEY is not set", name, envPrefix))
		}
		plain, err := DecryptValue(strings.TrimPrefix(v, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("header %s: %w", name, err)
		}
		cfg.Bridge.ExtraHeaders[name] = plain
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext), without the enc:
// prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue. Failures wrap
// domain.ErrDecryption.
func DecryptValue(encrypted, passphrase string) (string, error) {
	fail := func(detail string) error {
		return domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, detail)
	}

	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fail("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fail("decode salt: " + err.Error())
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fail("decode ciphertext: " + err.Error())
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fail("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fail("wrong passphrase or corrupted value")
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return domain.NewDomainError("config.Load", domain.ErrConfigLoad,
			fmt.Sprintf("%s has insecure permissions %o (want 0600 or 0644)", path, mode))
	}
	return nil
}

// ReadCapabilityScript returns the replacement capability library, or ""
// when none is configured.
func (c BridgeConfig) ReadCapabilityScript() (string, error) {
	if c.CapabilityScript == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.CapabilityScript)
	if err != nil {
		return "", domain.NewDomainError("config.ReadCapabilityScript", domain.ErrConfigLoad, err.Error())
	}
	return string(b), nil
}
