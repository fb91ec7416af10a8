package main

import (
	"io"
	"testing"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	tests := []struct {
		driver string
		want   store.Store
	}{
		{driver: "memory", want: &store.MemoryStore{}},
		{driver: "sqlite", want: &store.SQLiteStore{}},
		{driver: "postgres", want: &store.PostgresStore{}},
		{driver: "redis", want: &store.RedisStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Database.Driver = tt.driver

			st, err := newStore(log, cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, st)
		})
	}

	_, err := newStore(log, &config.Config{Database: config.DatabaseConfig{Driver: "mongo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver: mongo")
}
