package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tabmon/pkg/model"
)

// Duration reads human-readable durations ("250ms", "3s") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the tool-level configuration file structure.
type Config struct {
	Version string `yaml:"version"`

	// DevTools is the browser debugging endpoint (http://host:port).
	DevTools struct {
		URL string `yaml:"url"`
	} `yaml:"devtools"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Capture struct {
		Retries        int      `yaml:"retries"`
		InitialDelay   Duration `yaml:"initialDelay"`
		NotFoundDelay  Duration `yaml:"notFoundDelay"`
		GraceWindow    Duration `yaml:"graceWindow"`
		SweepInterval  Duration `yaml:"sweepInterval"`
		MaxEntryAge    Duration `yaml:"maxEntryAge"`
		PollInterval   Duration `yaml:"pollInterval"`
		CommandTimeout Duration `yaml:"commandTimeout"`
	} `yaml:"capture"`

	Pipeline struct {
		// ScriptTimeout bounds one custom-script transform run.
		ScriptTimeout Duration `yaml:"scriptTimeout"`
	} `yaml:"pipeline"`

	// Monitor is the monitoring profile applied on startup. An empty
	// profile leaves the monitor stopped until persisted state says
	// otherwise.
	Monitor model.Config `yaml:"monitor"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.Sqlite.Dsn = "db.sqlite3"
	c.Sqlite.Prefix = "tabmon_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	c.Log.File = "tabmon.log"
	c.Capture.Retries = 3
	c.Capture.InitialDelay = Duration(250 * time.Millisecond)
	c.Capture.NotFoundDelay = Duration(150 * time.Millisecond)
	c.Capture.GraceWindow = Duration(3 * time.Second)
	c.Capture.SweepInterval = Duration(time.Minute)
	c.Capture.MaxEntryAge = Duration(5 * time.Minute)
	c.Capture.PollInterval = Duration(time.Second)
	c.Capture.CommandTimeout = Duration(3 * time.Second)
	c.Pipeline.ScriptTimeout = Duration(5 * time.Second)
	return c
}

// Load reads a YAML config file over the defaults. A missing path keeps
// the defaults.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
