package qrunner

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

var (
	lookPath = exec.LookPath
	goos     = runtime.GOOS
)

// Command builds the argv for running scriptPath with the handler's
// interpreter. Parameters are split into words and never pass through a
// shell.
func Command(processName, scriptPath, params string) (string, []string, error) {
	extra, err := splitParams(params)
	if err != nil {
		return "", nil, err
	}
	name, args := interpreter(processName, scriptPath)
	return name, append(args, extra...), nil
}

// interpreter returns the program and the arguments that precede the caller's
// parameters.
func interpreter(processName, scriptPath string) (string, []string) {
	name := processName
	var args []string

	switch interpreterKind(processName) {
	case "powershell":
		name = pickPowerShell(processName)
		args = []string{"-NoProfile", "-NonInteractive", "-File", scriptPath}
	case "python":
		name = firstOnPath(processName, "python3", "python")
		args = []string{scriptPath}
	default:
		args = []string{scriptPath}
	}

	return name, args
}

// splitParams breaks params into words on unquoted whitespace. Single and
// double quotes group a word and are dropped. Everything else, backslashes
// and shell operators included, is kept as written.
func splitParams(params string) ([]string, error) {
	var (
		words  []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	for _, r := range params {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("parameters %q have an unterminated %c quote", params, quote)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

func interpreterKind(processName string) string {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(processName, `\`, "/")))
	base = strings.TrimSuffix(base, ".exe")
	switch base {
	case "powershell", "pwsh":
		return "powershell"
	case "python", "python3", "py":
		return "python"
	}
	return ""
}

// pickPowerShell prefers the cross-platform pwsh and falls back to Windows
// PowerShell on Windows hosts.
func pickPowerShell(configured string) string {
	if p, err := lookPath("pwsh"); err == nil {
		return p
	}
	if goos == "windows" {
		if p, err := lookPath("powershell.exe"); err == nil {
			return p
		}
		return "powershell.exe"
	}
	return configured
}

func firstOnPath(fallback string, names ...string) string {
	for _, n := range names {
		if p, err := lookPath(n); err == nil {
			return p
		}
	}
	return fallback
}
