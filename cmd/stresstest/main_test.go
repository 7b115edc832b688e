package main

import (
	"os"
	"testing"

	"github.com/myrjola/trainengine/internal/testhelpers"
)

func Test_run(t *testing.T) {
	t.Parallel()
	traces := t.TempDir()
	env := map[string]string{
		"TRAINENGINE_STRESS_USERS": "3",
		"TRAINENGINE_TRACES_DIR":   traces,
		"TRAINENGINE_SLOW_MILLIS":  "0",
	}
	lookupEnv := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	if err := run(t.Context(), logger, lookupEnv); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// Every scenario counts as slow, the cooldown allows a single dump.
	entries, err := os.ReadDir(traces)
	if err != nil {
		t.Fatalf("read traces: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d trace files, want 1", len(entries))
	}
}

func Test_run_noUsers(t *testing.T) {
	t.Parallel()
	lookupEnv := func(key string) (string, bool) {
		if key == "TRAINENGINE_STRESS_USERS" {
			return "0", true
		}
		return "", false
	}
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	if err := run(t.Context(), logger, lookupEnv); err == nil {
		t.Error("run() error = nil, want error for zero users")
	}
}
