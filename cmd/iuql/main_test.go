package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const repoYAML = `name: sample
units:
  - id: org.example.core
    version: 1.0.0
  - id: org.example.core
    version: 1.1.0
  - id: org.example.ui
    version: 2.0.0
    properties:
      org.eclipse.equinox.p2.name: Example UI
`

func noenv(string) string { return "" }

// runCLI runs the command line with no ambient config file.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	err := run(context.Background(), args, stdout, stderr, noenv)
	return stdout.String(), stderr.String(), err
}

func writeRepo(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunVersion(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "iuql dev (unknown)\n" {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestRunHelp(t *testing.T) {
	out, _, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"iuql evaluates installable-unit queries", "--config", "--repo", "query", "import"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in help, got %q", want, out)
		}
	}
}

func TestRunQuery(t *testing.T) {
	path := writeRepo(t, t.TempDir(), "repo.yaml", repoYAML)

	out, _, err := runCLI(t, "query", "-r", path, "everything.latest().collect(x | x.id)")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if want := "\"org.example.core\"\n\"org.example.ui\"\n"; out != want {
		t.Errorf("expected %q, got %q", want, out)
	}

	out, _, err = runCLI(t, "query", "-r", path, "--arg", "org.example.ui", "everything.select(x | x.id == $0)")
	if err != nil {
		t.Fatalf("query with --arg failed: %v", err)
	}
	if out != "org.example.ui 2.0.0\n" {
		t.Errorf("unexpected output %q", out)
	}

	out, _, err = runCLI(t, "query", "-r", path, "-p", "name=Example UI", "everything.exists(x | x.properties['org.eclipse.equinox.p2.name'] == $name)")
	if err != nil {
		t.Fatalf("query with --param failed: %v", err)
	}
	if out != "true\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunQueryJSON(t *testing.T) {
	path := writeRepo(t, t.TempDir(), "repo.yaml", repoYAML)

	out, _, err := runCLI(t, "query", "--json", "-r", path, "everything.collect(x | x.version)")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var got []string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not a JSON string array: %v\n%s", err, out)
	}
	if strings.Join(got, " ") != "1.0.0 1.1.0 2.0.0" {
		t.Errorf("unexpected versions %v", got)
	}

	out, _, err = runCLI(t, "query", "--json", "-r", path, "everything.select(x | false)")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected empty array, got %q", out)
	}
}

func TestRunMatch(t *testing.T) {
	path := writeRepo(t, t.TempDir(), "repo.yaml", repoYAML)

	out, _, err := runCLI(t, "match", "-r", path, "id == 'org.example.core' && version < version('1.1')")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if out != "org.example.core 1.0.0\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunFmt(t *testing.T) {
	out, _, err := runCLI(t, "fmt", "everything.select(x|x.id=='a').limit(2)")
	if err != nil {
		t.Fatalf("fmt failed: %v", err)
	}
	again, _, err := runCLI(t, "fmt", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("fmt of formatted text failed: %v", err)
	}
	if out != again {
		t.Errorf("formatting is not stable: %q then %q", out, again)
	}

	if _, _, err := runCLI(t, "fmt", "--predicate", "id == 'a'"); err != nil {
		t.Errorf("predicate fmt failed: %v", err)
	}
}

func TestRunParseError(t *testing.T) {
	path := writeRepo(t, t.TempDir(), "repo.yaml", repoYAML)
	_, _, err := runCLI(t, "query", "-r", path, "everything.select(")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "offset") {
		t.Errorf("expected error with an offset, got %v", err)
	}
}

func TestRunNoRepository(t *testing.T) {
	_, _, err := runCLI(t, "query", "everything")
	if err == nil || !strings.Contains(err.Error(), "no repositories configured") {
		t.Errorf("expected missing repository error, got %v", err)
	}
}

func TestRunDatabaseErrorHidesPassword(t *testing.T) {
	_, _, err := runCLI(t, "query", "-r", "mysql:iuql:hunter2@tcp(127.0.0.1:1)/units", "everything")
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error leaks the password: %v", err)
	}
	if !strings.Contains(err.Error(), "mysql:iuql:***@tcp(127.0.0.1:1)/units") {
		t.Errorf("expected the redacted location in %v", err)
	}
}

func TestRunImportSQLite(t *testing.T) {
	dir := t.TempDir()
	path := writeRepo(t, dir, "repo.yaml", repoYAML)
	db := "sqlite:" + filepath.Join(dir, "units.db")

	out, _, err := runCLI(t, "import", "--into", db, path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "imported 3 units") {
		t.Errorf("unexpected import output %q", out)
	}

	out, _, err = runCLI(t, "query", "-r", db, "everything.latest().collect(x | x.version)")
	if err != nil {
		t.Fatalf("query against sqlite failed: %v", err)
	}
	if out != "1.1.0\n2.0.0\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunImportCompressedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRepo(t, dir, "repo.yaml", repoYAML)
	target := filepath.Join(dir, "merged.json.zst")

	if _, _, err := runCLI(t, "import", "--into", target, path); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	out, _, err := runCLI(t, "query", "-r", target, "everything.collect(x | x.id).unique()")
	if err != nil {
		t.Fatalf("query against compressed file failed: %v", err)
	}
	if out != "\"org.example.core\"\n\"org.example.ui\"\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	writeRepo(t, dir, "main.yaml", repoYAML)
	writeRepo(t, dir, "extra.yaml", "units:\n  - id: org.example.extra\n    version: 0.1.0\n")
	cfgPath := writeRepo(t, dir, "iuql.yaml", `
repositories:
  - name: main
    location: main.yaml
  - name: extra
    location: extra.yaml
parameters:
  want: org.example.extra
logging:
  level: debug
  format: json
`)

	out, stderr, err := runCLI(t, "--config", cfgPath, "query", "everything.select(x | x.id == $want)")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if out != "org.example.extra 0.1.0\n" {
		t.Errorf("all configured repositories should be queried, got %q", out)
	}
	if !strings.Contains(stderr, `"msg":"parse cache miss"`) {
		t.Errorf("expected JSON debug logs, got %q", stderr)
	}

	out, _, err = runCLI(t, "--config", cfgPath, "--log-level", "error", "query", "-r", "main", "everything.collect(x | x.id).unique()")
	if err != nil {
		t.Fatalf("query by repository name failed: %v", err)
	}
	if out != "\"org.example.core\"\n\"org.example.ui\"\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunBadLogLevel(t *testing.T) {
	_, _, err := runCLI(t, "--log-level", "chatty", "version")
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("expected logging.level error, got %v", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, b *syncBuffer, cond func(string) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(b.String()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out; output so far: %q", b.String())
}

func TestRunWatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := writeRepo(t, dir, "repo.yaml", repoYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stdout := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"watch", "-r", path, "everything.collect(x | x.id).unique()"}, stdout, &syncBuffer{}, noenv)
	}()

	waitFor(t, stdout, func(s string) bool { return strings.Count(s, "---") == 1 })

	writeRepo(t, dir, "repo.yaml", repoYAML+"  - id: org.example.new\n    version: 1.0.0\n")
	waitFor(t, stdout, func(s string) bool { return strings.Contains(s, "org.example.new") && strings.Count(s, "---") >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
