package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// maxConfigSize bounds config files read from disk.
const maxConfigSize = 1 << 20

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader reading ROBOTMON_* environment overrides.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "ROBOTMON",
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
// Files ending in .yaml or .yml are read as YAML, everything else as JSON.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, each layer in order, environment overrides, then validation.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxConfigSize)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Loader", "loadRaw", "decode config")
	}
	return raw, nil
}

// mergeFromMap overlays only the keys present in override onto base.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if len(override) == 0 {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies PREFIX_* environment variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := l.lookupEnv(l.envPrefix + "_" + name); ok && v != "" {
			*dst = v
		}
	}

	var bad []string
	num := func(name string, dst *int) {
		if v, ok := l.lookupEnv(l.envPrefix + "_" + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				bad = append(bad, l.envPrefix+"_"+name)
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := l.lookupEnv(l.envPrefix + "_" + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad = append(bad, l.envPrefix+"_"+name)
				return
			}
			*dst = b
		}
	}

	str("HOST", &cfg.Session.Host)
	str("HOST", &cfg.Control.Host)
	str("SESSION_HOST", &cfg.Session.Host)
	num("SESSION_PORT", &cfg.Session.Port)
	str("CREDENTIALS_FILE", &cfg.Session.CredentialsFile)
	str("COMMAND", &cfg.Session.Command)
	str("KNOWN_HOSTS", &cfg.Session.KnownHostsFile)
	flag("INSECURE_HOST_KEY", &cfg.Session.InsecureHostKey)
	num("RECONNECT_MAX_ATTEMPTS", &cfg.Session.Reconnect.MaxAttempts)

	str("CONTROL_HOST", &cfg.Control.Host)
	num("CONTROL_PORT", &cfg.Control.Port)

	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	flag("NATS_ENABLED", &cfg.NATS.Enabled)
	if v, ok := l.lookupEnv(l.envPrefix + "_NATS_URLS"); ok && v != "" {
		cfg.NATS.URLs = strings.Split(v, ",")
	}
	str("NATS_SUBJECT", &cfg.NATS.Subject)
	str("NATS_USERNAME", &cfg.NATS.Username)
	str("NATS_PASSWORD", &cfg.NATS.Password)
	str("NATS_TOKEN", &cfg.NATS.Token)
	flag("NATS_TLS_ENABLED", &cfg.NATS.TLS.Enabled)

	flag("WEBSOCKET_ENABLED", &cfg.Web.Enabled)
	str("WEBSOCKET_ADDR", &cfg.Web.Addr)

	flag("RECORD_ENABLED", &cfg.Record.Enabled)
	str("RECORD_PATH", &cfg.Record.Path)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(bad) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: malformed %s", errors.ErrInvalidConfig, strings.Join(bad, ", ")),
			"Loader", "applyEnvOverrides", "parse environment")
	}
	return nil
}
