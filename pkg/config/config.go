package config

import "time"

// MinInterval is the hard floor enforced on every worker's polling interval.
const MinInterval = 60 * time.Second

// DefaultInterval is used when no interval is configured anywhere.
const DefaultInterval = 3600 * time.Second

// DestinationType selects the destination worker policy used for a
// destination: batched async checkin (Default) or unbatched synchronous
// per-source checkin (Satellite5).
type DestinationType string

const (
	DestinationTypeDefault    DestinationType = "default"
	DestinationTypeSatellite5 DestinationType = "satellite5"
)

// Source describes one configured virtualization backend instance. It is
// the "configuration handle" carried by reports: borrowed by whoever
// reads it, never mutated after Load returns.
type Source struct {
	Name         string
	Type         string // libvirt, esx, xen, rhevm, vdsm, hyperv, fake
	Server       string
	Username     string
	Password     string
	Env          string
	Owner        string
	ExcludeHosts []string
	FilterHosts  []string
	Interval     time.Duration
}

// Destination describes one configured subscription-management endpoint
// and the set of source keys it should receive reports from.
type Destination struct {
	Name            string
	Type            DestinationType
	SourceKeys      []string
	Server          string
	Username        string
	Password        string
	PollingInterval time.Duration
}

// Config is the fully resolved configuration for one agent run. It is
// read-only after Load, except that the executor fills in and clamps
// each Destination's PollingInterval when it builds workers.
type Config struct {
	Interval     time.Duration
	OneShot      bool
	Print        bool
	Debug        bool
	Background   bool
	ReporterID   string
	MetricsAddr  string
	ConfigPath   string
	Sources      map[string]*Source
	Destinations map[string]*Destination
}

// Defaults returns the built-in configuration, the lowest-precedence layer.
func Defaults() *Config {
	return &Config{
		Interval:     DefaultInterval,
		OneShot:      false,
		Print:        false,
		Debug:        false,
		Background:   false,
		MetricsAddr:  "",
		Sources:      map[string]*Source{},
		Destinations: map[string]*Destination{},
	}
}

// ClampInterval enforces the 60-second floor. Load applies it to the
// global and per-source intervals; the executor applies it to
// destination polling intervals when it builds workers.
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}
