package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frel-dev/frel/internal/config"
	"github.com/frel-dev/frel/internal/demo"
	"github.com/frel-dev/frel/pkg/runtime"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		arg  string
		want runtime.Event
	}{
		{"increment", runtime.Event{Type: "increment"}},
		{"set:5", runtime.Event{Type: "set", Payload: int64(5)}},
		{"set:-3", runtime.Event{Type: "set", Payload: int64(-3)}},
		{"add:milk", runtime.Event{Type: "add", Payload: "milk"}},
		{"add:a:b", runtime.Event{Type: "add", Payload: "a:b"}},
	}
	for _, tt := range tests {
		if got := parseEvent(tt.arg); got != tt.want {
			t.Errorf("parseEvent(%q) = %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(path, []byte(`{"name":"from-env","server":{"addr":":9999"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(configEnv, path)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Server.Addr != ":9999" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Server.Path != config.DefaultSocketPath {
		t.Errorf("defaults not applied: path = %q", cfg.Server.Path)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("loadConfig accepted a missing explicit path")
	}
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	events := []runtime.Event{
		{Type: demo.EventIncrement},
		{Type: demo.EventSet, Payload: "x"},
		{Type: demo.EventIncrement, Payload: int64(2)},
	}
	if err := runDemo(context.Background(), &out, config.New(), demo.Counter, events, false); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	s := out.String()
	for _, want := range []string{"(mount)", "count=1", "frame 3 aborted", "count=3"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q", out.String())
	}
}
