package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riskibarqy/manager-sync/internal/platform/logging"
)

func TestRun_UsageErrors(t *testing.T) {
	for _, args := range [][]string{nil, {"sideways"}} {
		if err := run(args, logging.NewNop()); !errors.Is(err, errUsage) {
			t.Fatalf("run(%v) expected usage error, got %v", args, err)
		}
	}
}

func TestRun_RequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	err := run([]string{"up"}, logging.NewNop())
	if err == nil || !strings.Contains(err.Error(), "DB_URL") {
		t.Fatalf("expected DB_URL error, got %v", err)
	}
}

func TestParseSteps(t *testing.T) {
	if steps, err := parseSteps(nil); err != nil || steps != 1 {
		t.Fatalf("expected default 1 step, got %d, %v", steps, err)
	}
	if steps, err := parseSteps([]string{" 3 "}); err != nil || steps != 3 {
		t.Fatalf("expected 3 steps, got %d, %v", steps, err)
	}
	for _, raw := range []string{"0", "-2", "x"} {
		if _, err := parseSteps([]string{raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseVersionAndTarget(t *testing.T) {
	if v, err := parseVersion("1773446400"); err != nil || v != 1773446400 {
		t.Fatalf("unexpected version: %d, %v", v, err)
	}
	if _, err := parseVersion("-1"); err == nil {
		t.Fatalf("expected error for negative version")
	}
	if target, err := parseTarget("7"); err != nil || target != 7 {
		t.Fatalf("unexpected target: %d, %v", target, err)
	}
	if _, err := parseTarget("-7"); err == nil {
		t.Fatalf("expected error for negative target")
	}
}

func TestNormalizeDBURL(t *testing.T) {
	got := normalizeDBURL("postgres://u:p@localhost:5432/sync?sslmode=disable", true)
	if !strings.Contains(got, "disable_prepared_binary_result=yes") {
		t.Fatalf("expected flag in url, got %q", got)
	}
	in := "postgres://u:p@localhost:5432/sync"
	if got := normalizeDBURL(in, false); got != in {
		t.Fatalf("expected url unchanged, got %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MIGRATION_TEST_FLAG", "false")
	if envBool("MIGRATION_TEST_FLAG", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("MIGRATION_TEST_FLAG", "garbage")
	if !envBool("MIGRATION_TEST_FLAG", true) {
		t.Fatalf("expected fallback true")
	}
}

func TestResolveMigrationsDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MIGRATIONS_DIR", dir)

	got, err := resolveMigrationsDir()
	if err != nil {
		t.Fatalf("resolve migrations dir: %v", err)
	}
	want, _ := filepath.Abs(dir)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	t.Setenv("MIGRATIONS_DIR", filepath.Join(dir, "missing"))
	if wd, _ := os.Getwd(); wd != "" {
		if _, err := os.Stat(filepath.Join(wd, "db", "migrations")); err == nil {
			t.Skip("working directory carries db/migrations")
		}
	}
	if _, err := resolveMigrationsDir(); err == nil {
		t.Fatalf("expected error when no directory exists")
	}
}
