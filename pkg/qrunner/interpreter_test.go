package qrunner

import (
	"errors"
	"strings"
	"testing"
)

func stubPath(t *testing.T, os string, available ...string) {
	t.Helper()
	oldLook, oldOS := lookPath, goos
	t.Cleanup(func() { lookPath, goos = oldLook, oldOS })

	goos = os
	lookPath = func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestCommandPowerShell(t *testing.T) {
	stubPath(t, "linux", "pwsh")
	name, args, err := Command("powershell", "/s/hello.ps1", `-Name "John Doe"`)
	if err != nil {
		t.Fatal(err)
	}
	if name != "/usr/bin/pwsh" {
		t.Errorf("expected pwsh, got %s", name)
	}
	want := "-NoProfile -NonInteractive -File /s/hello.ps1 -Name|John Doe"
	if got := strings.Join(args[:4], " ") + " " + strings.Join(args[4:], "|"); got != want {
		t.Errorf("unexpected args %q", got)
	}
}

func TestCommandPowerShellFallback(t *testing.T) {
	stubPath(t, "windows", "powershell.exe")
	name, _, err := Command("PowerShell.exe", `C:\s\a.ps1`, "")
	if err != nil {
		t.Fatal(err)
	}
	if name != "/usr/bin/powershell.exe" {
		t.Errorf("expected windows powershell fallback, got %s", name)
	}

	stubPath(t, "linux")
	name, _, _ = Command("powershell", "/s/a.ps1", "")
	if name != "powershell" {
		t.Errorf("expected configured name when nothing is on PATH, got %s", name)
	}
}

func TestCommandPython(t *testing.T) {
	stubPath(t, "linux", "python")
	name, args, err := Command("python", "/s/report.py", "--day 3")
	if err != nil {
		t.Fatal(err)
	}
	if name != "/usr/bin/python" || strings.Join(args, " ") != "/s/report.py --day 3" {
		t.Errorf("unexpected command %s %v", name, args)
	}

	stubPath(t, "linux", "python", "python3")
	if name, _, _ := Command("python", "/s/report.py", ""); name != "/usr/bin/python3" {
		t.Errorf("python3 should be preferred, got %s", name)
	}
}

func TestCommandOther(t *testing.T) {
	stubPath(t, "linux")
	name, args, err := Command("/bin/bash", "/s/x.sh", "")
	if err != nil {
		t.Fatal(err)
	}
	if name != "/bin/bash" || len(args) != 1 || args[0] != "/s/x.sh" {
		t.Errorf("unexpected command %s %v", name, args)
	}
}

func TestCommandRejectsUnbalancedQuotes(t *testing.T) {
	if _, _, err := Command("sh", "/s/x.sh", `'open`); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, err := Command("sh", "/s/x.sh", `say "hi`); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSplitParams(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{`-Path C:\scripts\data.txt`, []string{"-Path", `C:\scripts\data.txt`}},
		{`-Url http://x/?a=1&b=2`, []string{"-Url", "http://x/?a=1&b=2"}},
		{`a; rm -rf /`, []string{"a;", "rm", "-rf", "/"}},
		{`-Name "John Doe" -Tag 'x y'`, []string{"-Name", "John Doe", "-Tag", "x y"}},
		{`"C:\Program Files\app" ""`, []string{`C:\Program Files\app`, ""}},
		{`say"hello world"`, []string{"sayhello world"}},
	}
	for _, tc := range cases {
		got, err := splitParams(tc.in)
		if err != nil {
			t.Errorf("splitParams(%q) failed: %v", tc.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Errorf("splitParams(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
