package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Overrides carries CLI-flag-supplied values. A nil field means "the flag
// was not set on this invocation" and must not shadow a lower layer.
type Overrides struct {
	Interval    *int
	OneShot     *bool
	Print       *bool
	Debug       *bool
	Background  *bool
	ReporterID  *string
	MetricsAddr *string
}

type fileSource struct {
	Type         string   `yaml:"type"`
	Server       string   `yaml:"server"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	Env          string   `yaml:"env"`
	Owner        string   `yaml:"owner"`
	ExcludeHosts []string `yaml:"exclude_hosts"`
	FilterHosts  []string `yaml:"filter_hosts"`
	Interval     int      `yaml:"interval"`
}

type fileDestination struct {
	Type            string   `yaml:"type"`
	Sources         []string `yaml:"sources"`
	Server          string   `yaml:"server"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	PollingInterval int      `yaml:"polling_interval"`
}

type fileConfig struct {
	Interval     *int                        `yaml:"interval"`
	Oneshot      *bool                       `yaml:"oneshot"`
	Print        *bool                       `yaml:"print"`
	Debug        *bool                       `yaml:"debug"`
	Background   *bool                       `yaml:"background"`
	ReporterID   *string                     `yaml:"reporter_id"`
	MetricsAddr  *string                     `yaml:"metrics_addr"`
	Sources      map[string]fileSource       `yaml:"sources"`
	Destinations map[string]fileDestination  `yaml:"destinations"`
}

// Load resolves a Config by merging, in ascending precedence: built-in
// defaults, the YAML file at path (if it exists), VIRTWHO_-prefixed
// environment variables, and finally overrides (CLI flags).
//
// Sources and destinations are only ever defined by the file layer: there
// is no sane way to express a keyed list of backend definitions via flags
// or a handful of env vars, so the per-backend options in §6 of the spec
// are resolved exclusively from config.Sources/Destinations in the file.
func Load(path string, overrides Overrides) (*Config, error) {
	cfg := Defaults()
	cfg.ConfigPath = path

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	applyOverrides(cfg, overrides)

	cfg.Interval = ClampInterval(cfg.Interval)
	for _, src := range cfg.Sources {
		if src.Interval != 0 {
			src.Interval = ClampInterval(src.Interval)
		} else {
			src.Interval = cfg.Interval
		}
	}

	if cfg.ReporterID == "" {
		id, err := defaultReporterID()
		if err != nil {
			return nil, fmt.Errorf("failed to derive default reporter id: %w", err)
		}
		cfg.ReporterID = id
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Interval != nil {
		cfg.Interval = time.Duration(*fc.Interval) * time.Second
	}
	if fc.Oneshot != nil {
		cfg.OneShot = *fc.Oneshot
	}
	if fc.Print != nil {
		cfg.Print = *fc.Print
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if fc.Background != nil {
		cfg.Background = *fc.Background
	}
	if fc.ReporterID != nil {
		cfg.ReporterID = *fc.ReporterID
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}

	for name, s := range fc.Sources {
		cfg.Sources[name] = &Source{
			Name:         name,
			Type:         s.Type,
			Server:       s.Server,
			Username:     s.Username,
			Password:     s.Password,
			Env:          s.Env,
			Owner:        s.Owner,
			ExcludeHosts: s.ExcludeHosts,
			FilterHosts:  s.FilterHosts,
			Interval:     time.Duration(s.Interval) * time.Second,
		}
	}
	for name, d := range fc.Destinations {
		dtype := DestinationTypeDefault
		if d.Type == string(DestinationTypeSatellite5) {
			dtype = DestinationTypeSatellite5
		}
		cfg.Destinations[name] = &Destination{
			Name:            name,
			Type:            dtype,
			SourceKeys:      d.Sources,
			Server:          d.Server,
			Username:        d.Username,
			Password:        d.Password,
			PollingInterval: time.Duration(d.PollingInterval) * time.Second,
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("VIRTWHO_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("VIRTWHO_ONESHOT"); ok {
		cfg.OneShot = parseBool(v)
	}
	if v, ok := os.LookupEnv("VIRTWHO_PRINT"); ok {
		cfg.Print = parseBool(v)
	}
	if v, ok := os.LookupEnv("VIRTWHO_DEBUG"); ok {
		cfg.Debug = parseBool(v)
	}
	if v, ok := os.LookupEnv("VIRTWHO_BACKGROUND"); ok {
		cfg.Background = parseBool(v)
	}
	if v, ok := os.LookupEnv("VIRTWHO_REPORTER_ID"); ok && v != "" {
		cfg.ReporterID = v
	}
	if v, ok := os.LookupEnv("VIRTWHO_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Interval != nil {
		cfg.Interval = time.Duration(*o.Interval) * time.Second
	}
	if o.OneShot != nil {
		cfg.OneShot = *o.OneShot
	}
	if o.Print != nil {
		cfg.Print = *o.Print
	}
	if o.Debug != nil {
		cfg.Debug = *o.Debug
	}
	if o.Background != nil {
		cfg.Background = *o.Background
	}
	if o.ReporterID != nil && *o.ReporterID != "" {
		cfg.ReporterID = *o.ReporterID
	}
	if o.MetricsAddr != nil {
		cfg.MetricsAddr = *o.MetricsAddr
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// defaultReporterID derives a stable per-host identifier without
// persisting anything to disk: a version-5 (SHA-1 namespaced) UUID of
// the hostname, so repeated runs on the same host agree.
func defaultReporterID() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String(), nil
}

func validate(cfg *Config) error {
	for name, src := range cfg.Sources {
		if strings.TrimSpace(src.Type) == "" {
			return fmt.Errorf("source %q: type is required", name)
		}
	}
	for name, dst := range cfg.Destinations {
		for _, key := range dst.SourceKeys {
			if _, ok := cfg.Sources[key]; !ok {
				return fmt.Errorf("destination %q references unknown source %q", name, key)
			}
		}
	}
	return nil
}
