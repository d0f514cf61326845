// Package config loads attack profiles: YAML files holding the target,
// connection and extraction settings of a run, so long command lines can
// be kept next to the engagement notes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
	"github.com/0x6d61/sqlsiphon/internal/tamper"
)

// TargetConfig describes the injection point.
type TargetConfig struct {
	URL     string            `yaml:"url"`     // Target URL, query parameters included.
	Method  string            `yaml:"method"`  // HTTP method. Defaults to GET, or POST with data.
	Data    string            `yaml:"data"`    // Request body.
	Param   string            `yaml:"param"`   // Parameter to inject. Defaults to the first one.
	Cookie  string            `yaml:"cookie"`  // Cookie header value.
	Headers map[string]string `yaml:"headers"` // Extra headers.
	Prefix  string            `yaml:"prefix"`  // Boundary prefix closing the original value.
	Suffix  string            `yaml:"suffix"`  // Boundary suffix commenting out the rest.
}

// ConnectionConfig holds the HTTP client settings.
type ConnectionConfig struct {
	Proxy       string        `yaml:"proxy"`
	Timeout     time.Duration `yaml:"timeout"`
	RPS         float64       `yaml:"rps"` // Requests per second. 0 = unlimited.
	RandomAgent bool          `yaml:"random_agent"`
	Insecure    bool          `yaml:"insecure"`
}

// InjectionConfig tunes extraction.
type InjectionConfig struct {
	DBMS           string  `yaml:"dbms"`       // Vendor hint. Empty = fingerprint.
	Strategies     string  `yaml:"strategies"` // Strategy codes, e.g. "N,E,B,T" or "normal,blind".
	Threads        int     `yaml:"threads"`
	Workers        int     `yaml:"workers"`
	SleepTime      int     `yaml:"sleep_time"`
	MaxFields      int     `yaml:"max_fields"`
	Retries        int     `yaml:"retries"`
	BlindThreshold float64 `yaml:"blind_threshold"`
	MaxLength      int     `yaml:"max_length"`
	URLSafeNames   bool    `yaml:"url_safe_names"`
	NoCache        bool    `yaml:"no_cache"`
	Dialects       string  `yaml:"dialects"` // Directory of extra dialect descriptors.
	Tamper         string  `yaml:"tamper"`   // Tamper names, comma-separated.
}

// OutputConfig holds configuration settings related to output and logging.
type OutputConfig struct {
	Format  string `yaml:"format"`  // Output format ("text" or "json").
	File    string `yaml:"file"`    // Path to save the report.
	Verbose int    `yaml:"verbose"` // Verbosity level 0-3.
	Session string `yaml:"session"` // SQLite session file.
}

// Profile is the content of an attack profile.
type Profile struct {
	Target     TargetConfig     `yaml:"target"`
	Connection ConnectionConfig `yaml:"connection"`
	Injection  InjectionConfig  `yaml:"injection"`
	Output     OutputConfig     `yaml:"output"`
}

// Default returns the profile used when no file is given.
func Default() *Profile {
	cfg := engine.DefaultConfig()
	return &Profile{
		Connection: ConnectionConfig{Timeout: 30 * time.Second},
		Injection: InjectionConfig{
			Threads:   cfg.Threads,
			Workers:   cfg.Workers,
			SleepTime: cfg.SleepTime,
			MaxFields: cfg.MaxFields,
			Retries:   cfg.Retries,
		},
		Output: OutputConfig{Format: "text"},
	}
}

// LoadConfig reads the profile at filePath over the defaults. A missing
// file yields the defaults.
func LoadConfig(filePath string) (*Profile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", filePath, err)
	}
	return p, nil
}

// Parse decodes a profile over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Profile, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the values a YAML type cannot constrain.
func (p *Profile) Validate() error {
	inj := p.Injection
	switch {
	case inj.Threads < 0, inj.Workers < 0, inj.Retries < 0, inj.MaxFields < 0, inj.MaxLength < 0:
		return errors.New("injection: counts must not be negative")
	case inj.SleepTime < 0:
		return fmt.Errorf("injection: sleep_time %d", inj.SleepTime)
	case inj.BlindThreshold < 0 || inj.BlindThreshold > 1:
		return fmt.Errorf("injection: blind_threshold %v not in [0, 1]", inj.BlindThreshold)
	case p.Output.Verbose < 0 || p.Output.Verbose > 3:
		return fmt.Errorf("output: verbose %d not in [0, 3]", p.Output.Verbose)
	}
	if inj.Strategies != "" {
		if _, err := strategy.ParseKinds(inj.Strategies); err != nil {
			return fmt.Errorf("injection: %w", err)
		}
	}
	if _, err := tamper.BuildChain(strings.Split(inj.Tamper, ",")...); err != nil {
		return fmt.Errorf("injection: %w", err)
	}
	return nil
}

// Engine returns the engine configuration of the profile.
func (p *Profile) Engine() (*engine.Config, error) {
	cfg := engine.DefaultConfig()
	inj := p.Injection
	if inj.Strategies != "" {
		kinds, err := strategy.ParseKinds(inj.Strategies)
		if err != nil {
			return nil, err
		}
		cfg.Strategies = kinds
	}
	if inj.Threads > 0 {
		cfg.Threads = inj.Threads
	}
	if inj.Workers > 0 {
		cfg.Workers = inj.Workers
	}
	if inj.SleepTime > 0 {
		cfg.SleepTime = inj.SleepTime
	}
	if inj.MaxFields > 0 {
		cfg.MaxFields = inj.MaxFields
	}
	if inj.Retries > 0 {
		cfg.Retries = inj.Retries
	}
	cfg.BlindThreshold = inj.BlindThreshold
	cfg.MaxLength = inj.MaxLength
	cfg.URLSafeNames = inj.URLSafeNames
	cfg.CacheAnswers = !inj.NoCache
	cfg.Verbose = p.Output.Verbose
	return cfg, nil
}
