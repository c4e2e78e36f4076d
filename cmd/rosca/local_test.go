package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// localRunner runs commands against an in-process node whose badger state
// survives between invocations, like separate CLI runs would.
type localRunner struct {
	t      *testing.T
	config string
	data   string
}

func newLocalRunner(t *testing.T) *localRunner {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("ROSCA_NODE", "")
	t.Setenv("ROSCA_ACCOUNT", "")

	config := filepath.Join(dir, "rosca.yaml")
	body := "storage:\n  backend: badger\narchive:\n  backend: none\n  workers: 1\n"
	if err := os.WriteFile(config, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return &localRunner{t: t, config: config, data: filepath.Join(dir, "data")}
}

func (r *localRunner) run(args ...string) (int, string, string) {
	r.t.Helper()
	args = append(args, "--config", r.config, "--data-dir", r.data, "--at", "1000")
	var stdout, stderr bytes.Buffer
	code := run(&session{v: viper.New()}, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (r *localRunner) must(args ...string) string {
	r.t.Helper()
	code, stdout, stderr := r.run(args...)
	if code != 0 {
		r.t.Fatalf("%v: exit %d: %s", args, code, stderr)
	}
	return stdout
}

func TestLocalLifecycle(t *testing.T) {
	r := newLocalRunner(t)

	for _, who := range []string{"alice", "bob", "carol"} {
		r.must("ledger", "mint", "usdt", who, "100")
	}

	out := r.must("circle", "create", "--as", "alice", "--name", "savings",
		"-i", "bob,carol", "--min", "3", "--amount", "10", "--every", "10s", "--start-by", "5s")
	if !strings.Contains(out, "created rosca 0") {
		t.Fatalf("create output:\n%s", out)
	}

	r.must("circle", "join", "0", "--as", "bob")
	r.must("circle", "join", "0", "--as", "carol")

	if code, _, stderr := r.run("circle", "contribute", "0", "--as", "bob"); code != 1 || !strings.Contains(stderr, "RoscaNotActive") {
		t.Fatalf("contribute before start: exit %d, stderr %q", code, stderr)
	}

	r.must("circle", "start", "0", "--as", "alice")
	r.must("circle", "contribute", "0", "--as", "bob")
	out = r.must("circle", "contribute", "0", "--as", "carol")
	if !strings.Contains(out, "round 2 opened") {
		t.Fatalf("second contribution should open round 2:\n%s", out)
	}

	env := decodeEnvelope[struct {
		State rosca.State `json:"state"`
	}](t, r.must("circle", "show", "0", "-o", "json"))
	if env.Data.State.Round != 2 || env.Data.State.Status != rosca.StatusActive {
		t.Fatalf("state = %+v", env.Data.State)
	}

	if out := r.must("ledger", "balance", "usdt", "alice"); !strings.Contains(out, "alice holds 120 USDT") {
		t.Fatalf("balance output:\n%s", out)
	}

	list := decodeEnvelope[[]rosca.State](t, r.must("circle", "list", "-f", "round == 2", "-o", "json"))
	if len(list.Data) != 1 || list.Data[0].ID != 0 {
		t.Fatalf("filtered list = %+v", list.Data)
	}

	out = r.must("circle", "events", "0")
	for _, want := range []string{"alice created rosca 0", "bob joined", "bob paid 10 USDT to alice in round 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("events missing %q:\n%s", want, out)
		}
	}

	if code, _, _ := r.run("circle", "archived", "0"); code != 1 {
		t.Fatalf("archived with the archive disabled: exit %d", code)
	}
}
