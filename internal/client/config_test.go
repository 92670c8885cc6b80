package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "zero chunk size",
			mutate: func(c *Config) { c.ChunkSize = 0 },
			errMsg: "chunk size",
		},
		{
			name:   "negative chunk size",
			mutate: func(c *Config) { c.ChunkSize = -1 },
			errMsg: "chunk size",
		},
		{
			name:   "zero connections per node",
			mutate: func(c *Config) { c.MaxConnsPerNode = 0 },
			errMsg: "max connections",
		},
		{
			name:   "negative inflight cap",
			mutate: func(c *Config) { c.MaxInflight = -1 },
			errMsg: "max inflight",
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Workers = 0 },
			errMsg: "workers",
		},
		{
			name:   "negative retry limit",
			mutate: func(c *Config) { c.RetryLimit = -1 },
			errMsg: "retry limit",
		},
		{
			name:   "missing tag delimiter",
			mutate: func(c *Config) { c.TagOpen = 0 },
			errMsg: "tag delimiters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigAllowsDisabledInflightCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInflight = 0
	require.NoError(t, cfg.Validate())
}
