//go:build !windows

package qhook

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qjobs"
	"github.com/quatton/qhook/pkg/qpolicy"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go-redis starts a clock goroutine when the package loads
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"))
}

var _ qjobs.Executor = (*Service)(nil)

// newService writes the given scripts into a temp scripts directory served
// by an sh handler.
func newService(t *testing.T, trigger *qscript.Trigger, scripts map[string]string) *Service {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &qscript.Config{
		DefaultKey: "secret",
		Handlers: []qscript.Handler{{
			ProcessName:     "sh",
			FileExtension:   "sh",
			ScriptsLocation: "scripts",
			ScriptsMapping:  []qscript.Mapping{{Name: "guarded.sh", Trigger: trigger}},
		}},
	}
	d, err := qdispatch.New(cfg, base)
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, qpolicy.NewChain(cfg), d, qrunner.New(qrunner.Options{}), nil)
}

func TestRun(t *testing.T) {
	s := newService(t, nil, map[string]string{"hello.sh": `echo "hi $1"` + "\n"})

	result, err := s.Run(context.Background(), qscript.Request{Script: "hello.sh", Key: "secret", Parameters: "there"}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Success || result.Output != "hi there\n" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRunRejections(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	s := newService(t, nil, map[string]string{
		"hello.sh": "touch " + marker + "\n",
	})

	cases := []struct {
		name string
		req  qscript.Request
		code qerr.Code
	}{
		{"bad key", qscript.Request{Script: "hello.sh", Key: "nope"}, qerr.CodeValidation},
		{"missing key", qscript.Request{Script: "hello.sh"}, qerr.CodeValidation},
		{"traversal", qscript.Request{Script: "../hello.sh", Key: "secret"}, qerr.CodeValidation},
		{"unknown extension", qscript.Request{Script: "hello.rb", Key: "secret"}, qerr.CodeDispatch},
		{"missing file", qscript.Request{Script: "missing.sh", Key: "secret"}, qerr.CodeDispatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.Run(context.Background(), tc.req, nil)
			if err == nil || result != nil {
				t.Fatalf("expected rejection, got %+v %v", result, err)
			}
			if !qerr.IsCode(err, tc.code) {
				t.Errorf("expected code %s, got %v", tc.code, err)
			}
			if len(qerr.Reasons(err)) == 0 {
				t.Error("rejection carries no reasons")
			}
		})
	}
	if _, err := os.Stat(marker); err == nil {
		t.Error("a rejected request ran the script")
	}
}

func TestAdmit(t *testing.T) {
	s := newService(t, nil, map[string]string{"hello.sh": "exit 0\n"})

	if err := s.Admit(qscript.Request{Script: "hello.sh", Key: "secret"}, nil); err != nil {
		t.Errorf("Admit failed: %v", err)
	}
	if err := s.Admit(qscript.Request{Script: "missing.sh", Key: "secret"}, nil); !qerr.IsCode(err, qerr.CodeDispatch) {
		t.Errorf("expected dispatch error, got %v", err)
	}
}

func TestExecuteIgnoresHTTPTrigger(t *testing.T) {
	trigger := &qscript.Trigger{HttpMethod: "POST", IpAddresses: []string{"10.0.0.0/8"}}
	s := newService(t, trigger, map[string]string{"guarded.sh": "echo ok\n"})
	req := qscript.Request{Script: "guarded.sh", Key: "secret"}

	origin := &qpolicy.Origin{Method: "GET", Addr: netip.MustParseAddr("192.168.1.5")}
	if _, err := s.Run(context.Background(), req, origin); !qerr.IsCode(err, qerr.CodeValidation) {
		t.Fatalf("expected the HTTP request to be rejected, got %v", err)
	}

	result, err := s.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("job execution rejected: %v", err)
	}
	if !result.Success || result.Output != "ok\n" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRunExecutionFailureIsNotAnError(t *testing.T) {
	s := newService(t, nil, map[string]string{"fail.sh": "echo bad 1>&2\nexit 3\n"})

	result, err := s.Run(context.Background(), qscript.Request{Script: "fail.sh", Key: "secret"}, nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if result.Success || result.ExitCode != 3 || result.Code != qerr.CodeExecutionFailed {
		t.Errorf("unexpected result %+v", result)
	}
}
