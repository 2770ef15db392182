// Package api defines the configuration schema shared by every component.
// A Config is loaded once at startup and passed explicitly into the CED and
// Mya clients, the node builder, and the graph writer — no package carries
// mutable configuration state of its own.
package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML configuration file.
type Config struct {
	CED    CED    `yaml:"ced"`
	Mya    Mya    `yaml:"mya"`
	Nodes  Nodes  `yaml:"nodes"`
	Filter Filter `yaml:"filter"`
	Output Output `yaml:"output"`
	Log    Log    `yaml:"log"`
}

// CED describes the inventory query: which zone, which element types, and
// which properties and expressions to retrieve for each element.
type CED struct {
	// Server is the base URL of the CED web API.
	Server string `yaml:"server"`
	// Zone restricts the inventory query (e.g. "Injector").
	Zone       string   `yaml:"zone"`
	Types      []string `yaml:"types"`
	Properties []string `yaml:"properties"`
	// Expressions maps a result name to a CED expression evaluated per element.
	Expressions map[string]string `yaml:"expressions"`
	// Workspace selects a CED workspace other than OPS.
	Workspace string `yaml:"workspace"`
	// History queries the historical rather than the operational database.
	History bool `yaml:"history"`
}

// Mya describes the archiver queries: the deployment to read from, the date
// ranges and sampling interval, the facility-wide channels used for interval
// filtering, and an optional request throttle.
type Mya struct {
	// Server is the base URL of the Mya web API.
	Server string `yaml:"server"`
	// Deployment is "ops" for recent data or "history" for older data.
	Deployment string `yaml:"deployment"`
	// Throttle caps requests per second against the archiver. Zero means
	// unthrottled.
	Throttle float64 `yaml:"throttle"`
	// Interval is the sampling step width, e.g. "1h", "30m", "1d".
	Interval string      `yaml:"interval"`
	Dates    []DateRange `yaml:"dates"`
	// Global lists the facility-wide channels sampled independently of any
	// node and fed to the interval filter.
	Global []string `yaml:"global"`
}

// DateRange is one configured sampling window, inclusive of begin, exclusive
// of end. Timestamps are "YYYY-MM-DD hh:mm:ss" (or bare dates) in the
// facility's local timezone.
type DateRange struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

// Nodes configures how inventory elements become graph nodes.
type Nodes struct {
	// DefaultAttributes are merged into every node's output attributes.
	DefaultAttributes map[string]string `yaml:"default_attributes"`
	Rules             []Rule            `yaml:"rules"`
}

// Rule declares, for one element type (possibly an abstract ancestor such as
// "Magnet"), whether matching elements are setpoints and which archiver
// channels to sample for them. Channel entries may contain <name> for the
// element name or <Prop> for the value of a retrieved property or expression.
type Rule struct {
	Type       string            `yaml:"type"`
	Setpoint   bool              `yaml:"setpoint"`
	Channels   []string          `yaml:"channels"`
	Attributes map[string]string `yaml:"attributes"`
}

// Filter holds the global-data predicate. Expression is an HCL expression
// over the global channel values (identifiers are the channel names with
// non-identifier characters replaced by underscores), e.g.
// "IBC0R08CRCUR1 > 2". Empty means every interval passes.
type Filter struct {
	Expression string `yaml:"expression"`
}

// Output configures the graph sink.
type Output struct {
	// LoaderCommand, if set, is executed with the output directory appended
	// as its final argument when --load-graph is given.
	LoaderCommand []string `yaml:"loader_command"`
}

// Log configures the slog handler built at startup.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied by Load when the file leaves them unset.
const (
	DefaultCEDServer  = "https://ced.acc.jlab.org"
	DefaultMyaServer  = "https://myaweb.acc.jlab.org"
	DefaultDeployment = "history"
	DefaultInterval   = "1h"
)

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CED.Server == "" {
		c.CED.Server = DefaultCEDServer
	}
	if c.Mya.Server == "" {
		c.Mya.Server = DefaultMyaServer
	}
	if c.Mya.Deployment == "" {
		c.Mya.Deployment = DefaultDeployment
	}
	if c.Mya.Interval == "" {
		c.Mya.Interval = DefaultInterval
	}
}

// Validate reports missing required keys. Structural date errors (begin after
// end) are deliberately not checked here: the interval planner reports those
// per window so that one bad range does not sink the remaining valid ones.
func (c *Config) Validate() error {
	if len(c.CED.Types) == 0 {
		return fmt.Errorf("ced.types is required")
	}
	if len(c.Mya.Dates) == 0 {
		return fmt.Errorf("mya.dates is required")
	}
	if len(c.Nodes.Rules) == 0 {
		return fmt.Errorf("nodes.rules is required")
	}
	for i, d := range c.Mya.Dates {
		if d.Begin == "" || d.End == "" {
			return fmt.Errorf("mya.dates[%d]: begin and end are required", i)
		}
	}
	return nil
}
