package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type (
	// RelaydConfig is the full configuration of the relay server application.
	RelaydConfig struct {
		Relay      Relay
		Monitoring Monitoring
	}
	Relay struct {
		Debug  bool
		Origin string
		Server Server
		Room   Room
	}
	Room struct {
		// BacklogLimit caps the number of document updates retained per
		// room for replay to late joiners; 0 means unbounded.
		BacklogLimit int `fig:"backlog_limit"`
	}
	Server struct {
		Address  string
		Https    bool
		PortRoll bool `fig:"port_roll"`
		Tls      struct {
			Address   string
			Domain    string
			HttpsCert string `fig:"https_cert"`
			HttpsKey  string `fig:"https_key"`
		}
	}
	Monitoring struct {
		Port             int
		URLPrefix        string `fig:"url_prefix"`
		MetricEnabled    bool   `fig:"metric_enabled"`
		ProfilingEnabled bool   `fig:"profiling_enabled"`
	}
	// Session tunes the client-side session bindings.
	Session struct {
		StatusPollInterval time.Duration `fig:"status_poll_interval" default:"1s"`
		HeartbeatInterval  time.Duration `fig:"heartbeat_interval" default:"5s"`
		StaleAfter         time.Duration `fig:"stale_after" default:"30s"`
	}
)

func (m Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

// DefaultSession mirrors the fig defaults for callers that do not go
// through a config file.
func DefaultSession() Session {
	return Session{
		StatusPollInterval: time.Second,
		HeartbeatInterval:  5 * time.Second,
		StaleAfter:         30 * time.Second,
	}
}

func NewRelaydConfig(path string) (conf RelaydConfig, err error) {
	err = LoadConfig(&conf, path)
	return
}

func (c *RelaydConfig) ParseFlags() {
	c.Relay.WithFlags()
	flag.Parse()
}

func (r *Relay) WithFlags() {
	flag.BoolVarP(&r.Debug, "debug", "d", r.Debug, "debug logging")
	flag.StringVar(&r.Server.Address, "address", r.Server.Address, "relay server address")
	flag.IntVar(&r.Room.BacklogLimit, "backlog", r.Room.BacklogLimit, "per-room update backlog limit")
}
