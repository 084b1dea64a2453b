package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
store:
  driver: sqlite
  dsn: %s
odoo:
  url: https://erp.example.com
  database: prod
  username: sync@example.com
  api_key: secret
  rate_limit: 5
sync:
  batch_size: 20
  time_budget: 25s
  breaker:
    threshold: 5
cron:
  cleanup: ""
modules:
  - name: crm
    entities:
      - type: contact
        odoo_model: res.partner
        fields: [name, email]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odoosync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, strings.Replace(sampleConfig, "%s", "sync.db", 1))

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.BatchSize != 20 || cfg.Sync.TimeBudget != 25*time.Second {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Breaker.Threshold != 5 || cfg.Sync.Breaker.RecoveryDelay != 300*time.Second {
		t.Errorf("breaker = %+v", cfg.Sync.Breaker)
	}
	if cfg.Sync.StaleTimeout != 10*time.Minute || cfg.Sync.BackoffStrategy != "linear" {
		t.Errorf("defaults lost: %+v", cfg.Sync)
	}
	if cfg.Cron.Cleanup != "" || cfg.Cron.ProcessQueue != "@every 1m" {
		t.Errorf("cron = %+v", cfg.Cron)
	}
	if cfg.Odoo.RateLimit != 5 || cfg.Odoo.Timeout != 30*time.Second {
		t.Errorf("odoo = %+v", cfg.Odoo)
	}
	if len(cfg.Modules) != 1 || len(cfg.Modules[0].Entities) != 1 {
		t.Fatalf("modules = %+v", cfg.Modules)
	}
	if e := cfg.Modules[0].Entities[0]; e.OdooModel != "res.partner" || len(e.Fields) != 2 {
		t.Errorf("entity = %+v", e)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, strings.Replace(sampleConfig, "%s", "sync.db", 1))
	t.Setenv("ODOOSYNC_SYNC_BATCH_SIZE", "75")
	t.Setenv("ODOOSYNC_API_JWT_SECRET", "from-env")
	t.Setenv("ODOOSYNC_SYNC_DRY_RUN", "true")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.BatchSize != 75 || !cfg.Sync.DryRun {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.API.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q", cfg.API.JWTSecret)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"text", LogConfig{Level: "info", Format: "text"}, false},
		{"json debug", LogConfig{Level: "debug", Format: "json"}, false},
		{"bad level", LogConfig{Level: "loud", Format: "text"}, true},
		{"bad format", LogConfig{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, closer, err := newLogger(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if closer != nil {
				_ = closer.Close()
			}
		})
	}
}

func TestNewLogger_RotatingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "odoosync.log")
	logger, closer, err := newLogger(LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"msg":"hello"`)) {
		t.Errorf("log file = %s", b)
	}
}

func TestRootCommand_QueueRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "store:\n  driver: sqlite\n  dsn: "+filepath.Join(dir, "q.db")+"\nlog:\n  level: error\n")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		root := newRootCommand()
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--config", path}, args...))
		if err := root.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("%v: %v\n%s", args, err, out.String())
		}
		return out.String()
	}

	if out := run("migrate"); !strings.Contains(out, "migrated") {
		t.Errorf("migrate output = %q", out)
	}
	if out := run("queue", "stats"); !strings.Contains(out, "pending:        0") {
		t.Errorf("stats output = %q", out)
	}
	if out := run("sync", "run", "--dry-run"); !strings.Contains(out, "processed 0 of 0") {
		t.Errorf("run output = %q", out)
	}
	if out := run("queue", "retry"); !strings.Contains(out, "0 failed job(s) requeued") {
		t.Errorf("retry output = %q", out)
	}
	if out := run("--json", "queue", "list"); strings.TrimSpace(out) != "null" && strings.TrimSpace(out) != "[]" {
		t.Errorf("list output = %q", out)
	}
}

func TestNewApp_ModulesNeedOdoo(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Store:   StoreConfig{Driver: "memory"},
		Log:     LogConfig{Level: "error", Format: "text"},
		Modules: []ModuleConfig{{Name: "crm"}},
	}
	path := writeConfig(t, "")
	base, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Sync = base.Sync

	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Error("modules without odoo.url should fail")
	}
}

func TestNewApp_RegistersModules(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, strings.Replace(sampleConfig, "dsn: %s", "", 1)+"\nlog:\n  level: error\n")
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Store = StoreConfig{Driver: "memory"}
	cfg.Audit = AuditConfig{Enabled: true, Actions: []string{"job.failed"}}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close(context.Background())

	if names := a.eng.Registry().Names(); len(names) != 1 || names[0] != "crm" {
		t.Errorf("modules = %v", names)
	}
	if model, ok := a.eng.Registry().Model("crm", "contact"); !ok || model != "res.partner" {
		t.Errorf("model = %q, %v", model, ok)
	}
	if a.reconciler == nil || a.odoo == nil {
		t.Error("odoo client and reconciler should be built")
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Store.Driver = "oracle"
	cfg.Log.Level = "error"
	if _, err := newApp(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Errorf("err = %v", err)
	}
}
