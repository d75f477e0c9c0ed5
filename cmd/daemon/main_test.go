// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigCLI_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, configCLI(nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "tvrelay config validate")

	errOut.Reset()
	assert.Equal(t, 2, configCLI([]string{"frobnicate"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Unknown subcommand: frobnicate")
}

func TestConfigCLI_Validate(t *testing.T) {
	good := writeConfig(t, `
refresh:
  interval: 30s
channels:
  - id: stable_a
    kind: stable
    locator: http://upstream/a.m3u8
  - id: live_x
    kind: resolvable
    locator: https://video.example/@x/live
`)
	var out, errOut bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"validate", "-f", good}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "2 channels, 1 resolvable")

	bad := writeConfig(t, "nosuchfield: true\n")
	out.Reset()
	errOut.Reset()
	assert.Equal(t, 1, configCLI([]string{"validate", "--file", bad}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Configuration error")
}

func TestConfigCLI_DumpRoundTrips(t *testing.T) {
	path := writeConfig(t, "logLevel: debug\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"dump", "-f", path}, &out, &errOut), errOut.String())

	var dumped map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &dumped))
	assert.Equal(t, "debug", dumped["logLevel"])

	// the dump is itself a valid config file
	again := writeConfig(t, out.String())
	out.Reset()
	assert.Equal(t, 0, configCLI([]string{"validate", "-f", again}, &out, &errOut), errOut.String())

	assert.Equal(t, 2, configCLI([]string{"dump", "-f", path, "--format", "toml"}, &out, &errOut))
}

func TestProbe(t *testing.T) {
	var notReady atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" && notReady.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.Equal(t, 0, probe(srv.URL, "ready", time.Second))
	notReady.Store(true)
	assert.Equal(t, 1, probe(srv.URL, "ready", time.Second))
	assert.Equal(t, 0, probe(srv.URL, "live", time.Second))
	assert.Equal(t, 1, probe("http://127.0.0.1:1", "live", 200*time.Millisecond))
}
