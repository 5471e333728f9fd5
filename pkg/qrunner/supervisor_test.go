//go:build !windows

package qrunner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qscript"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// resolve writes body as dir/name and resolves it through a dispatcher with
// an sh handler.
func resolve(t *testing.T, processName, name, body string) *qdispatch.Resolution {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &qscript.Config{Handlers: []qscript.Handler{
		{ProcessName: processName, FileExtension: qscript.Extension(name), ScriptsLocation: dir},
	}}
	d, err := qdispatch.New(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return res
}

func TestExecuteSuccess(t *testing.T) {
	res := resolve(t, "sh", "hello.sh", "echo hello\necho warn 1>&2\n")
	s := New(Options{})

	result := s.Execute(context.Background(), res, "")
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Output != "hello\n" || result.Error != "warn\n" {
		t.Errorf("unexpected output %q / %q", result.Output, result.Error)
	}
	if result.ExitCode != 0 || result.Code != "" || result.Err() != nil {
		t.Errorf("unexpected status %+v", result)
	}
	if result.ScriptName != "hello.sh" || result.ID == "" {
		t.Errorf("unexpected identity %+v", result)
	}
}

func TestExecuteParameters(t *testing.T) {
	res := resolve(t, "sh", "args.sh", `echo "$#|$1|$2"`+"\n")
	s := New(Options{})

	result := s.Execute(context.Background(), res, `first "second word"`)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Output != "2|first|second word\n" {
		t.Errorf("unexpected output %q", result.Output)
	}

	// no shell is involved, so metacharacters arrive verbatim
	result = s.Execute(context.Background(), res, `'$(id)' ';'`)
	if result.Output != "2|$(id)|;\n" {
		t.Errorf("parameters were interpreted: %q", result.Output)
	}
}

func TestExecuteParametersKeepBackslashesAndOperators(t *testing.T) {
	res := resolve(t, "sh", "print.sh", `printf '%s\n' "$@"`+"\n")
	s := New(Options{})

	cases := []struct {
		params string
		want   string
	}{
		{`-Path C:\scripts\data.txt`, "-Path\nC:\\scripts\\data.txt\n"},
		{`-Url http://x/?a=1&b=2`, "-Url\nhttp://x/?a=1&b=2\n"},
		{`-Filter a>b`, "-Filter\na>b\n"},
		{`a|b c;d`, "a|b\nc;d\n"},
	}
	for _, tc := range cases {
		result := s.Execute(context.Background(), res, tc.params)
		if !result.Success {
			t.Errorf("%s: expected success, got %+v", tc.params, result)
			continue
		}
		if result.Output != tc.want {
			t.Errorf("%s: got %q, want %q", tc.params, result.Output, tc.want)
		}
	}
}

func TestExecuteBadParameters(t *testing.T) {
	res := resolve(t, "sh", "args.sh", "echo hi\n")
	result := New(Options{}).Execute(context.Background(), res, `"unterminated`)
	if result.Success || result.Code != qerr.CodeExecutionFailed {
		t.Fatalf("expected execution failure, got %+v", result)
	}
}

func TestExecuteEnvironment(t *testing.T) {
	res := resolve(t, "sh", "env.sh", `echo "$QHOOK_SCRIPT $QHOOK_EXECUTION_ID"`+"\n")
	result := New(Options{}).Execute(context.Background(), res, "")
	if want := "env.sh " + result.ID + "\n"; result.Output != want {
		t.Errorf("expected %q, got %q", want, result.Output)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	res := resolve(t, "sh", "fail.sh", "echo partial\necho broken 1>&2\nexit 3\n")
	result := New(Options{}).Execute(context.Background(), res, "")

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ExitCode != 3 || result.Code != qerr.CodeExecutionFailed {
		t.Errorf("unexpected status %+v", result)
	}
	if result.Output != "partial\n" || result.Error != "broken\n" {
		t.Errorf("output should be kept on failure, got %q / %q", result.Output, result.Error)
	}
	if !qerr.IsCode(result.Err(), qerr.CodeExecutionFailed) {
		t.Errorf("unexpected Err %v", result.Err())
	}
}

func TestExecuteStartFailure(t *testing.T) {
	res := resolve(t, "qhook-no-such-interpreter", "x.zz", "")
	result := New(Options{}).Execute(context.Background(), res, "")

	if result.Success || result.Code != qerr.CodeExecutionFailed {
		t.Fatalf("expected execution failure, got %+v", result)
	}
	if result.ExitCode != -1 || !strings.Contains(result.Message, "failed to run") || result.Error == "" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExecuteTimeoutKillsProcessTree(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	res := resolve(t, "sh", "hang.sh", "sleep 30 &\necho $! > \"$1\"\necho started\nwait\n")
	s := New(Options{ExecutionTimeout: 300 * time.Millisecond, WaitDelay: 500 * time.Millisecond})

	start := time.Now()
	result := s.Execute(context.Background(), res, pidFile)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}

	if result.Success || result.Code != qerr.CodeExecutionTimeout {
		t.Fatalf("expected execution timeout, got %+v", result)
	}
	if result.Output != "started\n" {
		t.Errorf("output before the timeout should be kept, got %q", result.Output)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("child pid not written: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !processGone(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("descendant %d survived the timeout", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// processGone reports whether pid no longer exists or is a zombie awaiting
// its new parent.
func processGone(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	// the state follows the parenthesised command name
	i := strings.LastIndexByte(string(stat), ')')
	return i > 0 && i+2 < len(stat) && stat[i+2] == 'Z'
}

func TestExecuteGateIgnoresCase(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	res := resolve(t, "sh", "Touch.sh", "touch \"$1\"\n")
	s := New(Options{MaxConcurrent: 1, AdmissionTimeout: 100 * time.Millisecond})

	release, err := s.Admission().Acquire(context.Background(), "touch.sh", time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	result := s.Execute(context.Background(), res, marker)
	if result.Code != qerr.CodeAdmissionTimeout {
		t.Fatalf("Touch.sh and touch.sh must share a gate, got %+v", result)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatal("a process was spawned despite admission failure")
	}
}

func TestExecuteAdmissionTimeout(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	res := resolve(t, "sh", "touch.sh", "touch \"$1\"\n")
	s := New(Options{MaxConcurrent: 1, AdmissionTimeout: 100 * time.Millisecond})

	release, err := s.Admission().Acquire(context.Background(), "touch.sh", time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	result := s.Execute(context.Background(), res, marker)
	if result.Success || result.Code != qerr.CodeAdmissionTimeout {
		t.Fatalf("expected admission timeout, got %+v", result)
	}
	if !strings.Contains(result.Message, "too many concurrent executions") {
		t.Errorf("unexpected message %q", result.Message)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatal("a process was spawned despite admission failure")
	}

	release()
	result = s.Execute(context.Background(), res, marker)
	if !result.Success {
		t.Fatalf("expected success once the slot is free, got %+v", result)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("script did not run after the slot was released")
	}
}

func TestExecuteReleasesSlotOnFailure(t *testing.T) {
	res := resolve(t, "sh", "fail.sh", "exit 1\n")
	s := New(Options{MaxConcurrent: 1, AdmissionTimeout: 50 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if result := s.Execute(context.Background(), res, ""); result.Code != qerr.CodeExecutionFailed {
			t.Fatalf("run %d: expected execution failure, got %+v", i, result)
		}
	}
}

func TestExecuteCancelled(t *testing.T) {
	res := resolve(t, "sh", "slow.sh", "sleep 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	result := New(Options{WaitDelay: 200 * time.Millisecond}).Execute(ctx, res, "")
	if result.Success || result.Code != qerr.CodeExecutionFailed || result.Message != "execution cancelled" {
		t.Fatalf("expected cancellation, got %+v", result)
	}
}

func TestExecuteNilResolution(t *testing.T) {
	result := New(Options{}).Execute(context.Background(), nil, "")
	if result.Success || result.Code != qerr.CodeInternal {
		t.Fatalf("expected internal error, got %+v", result)
	}
}

func TestBoundedBuffer(t *testing.T) {
	b := &boundedBuffer{max: 4}
	b.Write([]byte("ab"))
	b.Write([]byte("cdef"))
	if got := b.String(); got != "abcd\n[output truncated]" {
		t.Errorf("unexpected %q", got)
	}
}
