package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/FranksOps/painminer/internal/report"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/spf13/cobra"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("db", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "painminer.yaml")
	yaml := "log:\n  level: warn\nstorage:\n  dsn: from-file.db\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(testCommand(t, "--config", path))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Storage.DSN != "from-file.db" {
		t.Errorf("file values not applied: %+v %+v", cfg.Log, cfg.Storage)
	}

	override := filepath.Join(dir, "override.db")
	cfg, err = loadConfig(testCommand(t, "--config", path, "--log-level", "debug", "--db", override))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Storage.DSN != override {
		t.Errorf("flag overrides not applied: %+v %+v", cfg.Log, cfg.Storage)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(testCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRender(t *testing.T) {
	d := &pipeline.JobDetails{
		SearchJob: &storage.SearchJob{ID: 4, Query: "payroll", Status: storage.StatusCompleted},
		Posts: []*storage.RankedPost{
			{Source: "smallbusiness", Title: "Payroll is killing me", PainScore: 5},
		},
	}

	for _, format := range formats {
		var buf bytes.Buffer
		if err := render(&buf, d, format, report.TextOptions{TopPosts: 5}); err != nil {
			t.Errorf("%s: %v", format, err)
			continue
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty output", format)
		}
	}

	var buf bytes.Buffer
	err := render(&buf, d, "pdf", report.TextOptions{})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("pdf: err = %v", err)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := testCommand(t, "--db", filepath.Join(t.TempDir(), "cli.db"))
	c, err := loadConfig(cfg)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	store, err := openStore(t.Context(), c.Storage)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	job, err := store.CreateJob(t.Context(), "q", []string{"a"})
	if err != nil || job.Status != storage.StatusPending {
		t.Fatalf("CreateJob = %+v, %v", job, err)
	}
}

func TestTextOptions(t *testing.T) {
	cfg, err := loadConfig(testCommand(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	opts, err := textOptions(cfg, 3, false)
	if err != nil || opts.TopPosts != 3 || opts.Evidence != nil {
		t.Errorf("without evidence = %+v, %v", opts, err)
	}

	opts, err = textOptions(cfg, 3, true)
	if err != nil || opts.Evidence == nil {
		t.Fatalf("with evidence = %+v, %v", opts, err)
	}
	if len(opts.Evidence.Rules()) != 5 {
		t.Errorf("evidence scorer has %d rules, want the 5 defaults", len(opts.Evidence.Rules()))
	}
}
