package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

const profile = `
target:
  url: http://shop.test/item.php?id=1
  param: id
  headers:
    X-Forwarded-For: 127.0.0.1
connection:
  proxy: socks5://127.0.0.1:9050
  timeout: 10s
  rps: 5
injection:
  dbms: mysql
  strategies: blind,time
  threads: 8
  sleep_time: 2
  blind_threshold: 0.9
  no_cache: true
  tamper: space2comment,randomcase
output:
  format: json
  verbose: 2
  session: shop.db
`

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(profile))
	require.NoError(t, err)

	assert.Equal(t, "http://shop.test/item.php?id=1", p.Target.URL)
	assert.Equal(t, "127.0.0.1", p.Target.Headers["X-Forwarded-For"])
	assert.Equal(t, 10*time.Second, p.Connection.Timeout)
	assert.Equal(t, 5.0, p.Connection.RPS)
	assert.Equal(t, "json", p.Output.Format)
	assert.Equal(t, "shop.db", p.Output.Session)
	assert.Equal(t, "space2comment,randomcase", p.Injection.Tamper)

	// unset keys keep their defaults
	assert.Equal(t, Default().Injection.Workers, p.Injection.Workers)
	assert.Equal(t, Default().Injection.Retries, p.Injection.Retries)
}

func TestEngineConfig(t *testing.T) {
	p, err := Parse(strings.NewReader(profile))
	require.NoError(t, err)

	cfg, err := p.Engine()
	require.NoError(t, err)
	assert.Equal(t, []strategy.Kind{strategy.Blind, strategy.Time}, cfg.Strategies)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 2, cfg.SleepTime)
	assert.Equal(t, 0.9, cfg.BlindThreshold)
	assert.False(t, cfg.CacheAnswers)
	assert.Equal(t, 2, cfg.Verbose)
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg, err := Default().Engine()
	require.NoError(t, err)
	assert.Equal(t, strategy.All(), cfg.Strategies)
	assert.True(t, cfg.CacheAnswers)
}

func TestParseEmpty(t *testing.T) {
	p, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "injection:\n  therads: 4\n"},
		{"unknown strategy", "injection:\n  strategies: stacked\n"},
		{"threshold", "injection:\n  blind_threshold: 1.5\n"},
		{"negative", "injection:\n  workers: -1\n"},
		{"verbose", "output:\n  verbose: 9\n"},
		{"unknown tamper", "injection:\n  tamper: space2comment,rot13\n"},
		{"bad duration", "connection:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))

	p, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "id", p.Target.Param)

	require.NoError(t, os.WriteFile(path, []byte("output: [\n"), 0o600))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, path)
}

func TestLoadConfigMissingFile(t *testing.T) {
	p, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}
