package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestConfigureLogger(t *testing.T) {
	log := discardLogger()

	require.NoError(t, configureLogger(log, "debug", "json"))
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	require.NoError(t, configureLogger(log, "warn", "text"))
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	require.Error(t, configureLogger(log, "loud", "text"))
	require.Error(t, configureLogger(log, "info", "xml"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer

	root := newRootCmd(discardLogger())
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

func TestRunMigrate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "gheregistry.db")

	// Running twice leaves the schema in place.
	require.NoError(t, runMigrate(context.Background(), discardLogger(), cfg))
	require.NoError(t, runMigrate(context.Background(), discardLogger(), cfg))

	assert.FileExists(t, cfg.Database.SQLite.Path)
}

func TestRunProbe(t *testing.T) {
	ghe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(github.RequestIDHeader, "ABCD:1234")
		w.WriteHeader(http.StatusOK)
	}))
	defer ghe.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer plain.Close()

	cfg := config.ProbeConfig{Timeout: 5 * time.Second, UserAgent: "gheregistry-test"}

	t.Run("github", func(t *testing.T) {
		var out bytes.Buffer

		require.NoError(t, runProbe(context.Background(), discardLogger(), cfg, ghe.URL+"/api/v3", &out))

		var result github.ProbeResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, github.OutcomeGitHub, result.Outcome)
		assert.Equal(t, "ABCD:1234", result.RequestID)
		assert.Equal(t, http.StatusOK, result.StatusCode)
	})

	t.Run("not github", func(t *testing.T) {
		var out bytes.Buffer

		err := runProbe(context.Background(), discardLogger(), cfg, plain.URL, &out)

		var probeErr *github.ProbeError
		require.True(t, errors.As(err, &probeErr))
		assert.Equal(t, github.NotGitHubMessage, probeErr.Message)
		assert.Contains(t, out.String(), `"outcome": "not_github"`)
	})
}
