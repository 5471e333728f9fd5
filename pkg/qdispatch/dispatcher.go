// Package qdispatch maps a script name to its handler and a verified path on
// disk.
package qdispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qscript"
)

// Resolution is a script the dispatcher located. Its fields are unexported
// so only Resolve can produce one.
type Resolution struct {
	handler *qscript.Handler
	mapping *qscript.Mapping
	name    string
	path    string
}

func (r *Resolution) Handler() *qscript.Handler { return r.handler }

// Mapping is nil when the script has no mapping of its own.
func (r *Resolution) Mapping() *qscript.Mapping { return r.mapping }

// Name is the bare file name of the script.
func (r *Resolution) Name() string { return r.name }

// Path is the absolute, verified path to the script file.
func (r *Resolution) Path() string { return r.path }

type Dispatcher struct {
	cfg     *qscript.Config
	baseDir string
}

// New creates a dispatcher. Relative scripts locations are resolved against
// baseDir, or the working directory when baseDir is empty.
func New(cfg *qscript.Config, baseDir string) (*Dispatcher, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		baseDir = wd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory %s: %w", baseDir, err)
	}
	return &Dispatcher{cfg: cfg, baseDir: abs}, nil
}

// BaseDir returns the directory relative scripts locations resolve against.
func (d *Dispatcher) BaseDir() string { return d.baseDir }

// Root returns the absolute scripts directory of a handler.
func (d *Dispatcher) Root(h *qscript.Handler) string {
	if filepath.IsAbs(h.ScriptsLocation) {
		return filepath.Clean(h.ScriptsLocation)
	}
	return filepath.Join(d.baseDir, h.ScriptsLocation)
}

// Resolve locates script. Failures carry the dispatch error code and a
// reason; nothing on disk is modified.
func (d *Dispatcher) Resolve(script string) (*Resolution, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, qerr.Reject(qerr.CodeDispatch, "script name is empty")
	}

	// the name may use either separator regardless of host
	name := filepath.Base(strings.ReplaceAll(script, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return nil, qerr.Reject(qerr.CodeDispatch, fmt.Sprintf("invalid script name %q", script))
	}

	ext := qscript.Extension(name)
	if ext == "" {
		return nil, qerr.Reject(qerr.CodeDispatch, fmt.Sprintf("script %q has no file extension", script))
	}

	h := d.cfg.Handler(name)
	if h == nil {
		return nil, qerr.Reject(qerr.CodeDispatch, fmt.Sprintf("no handler for extension %s", ext))
	}

	path := filepath.Join(d.Root(h), name)
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return nil, qerr.Reject(qerr.CodeDispatch, fmt.Sprintf("script not found at %s", path))
	}

	return &Resolution{
		handler: h,
		mapping: h.Mapping(name),
		name:    name,
		path:    path,
	}, nil
}
