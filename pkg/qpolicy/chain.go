// Package qpolicy implements the admission policy applied to a script
// request before anything is dispatched or executed.
package qpolicy

import (
	"net/netip"
	"strings"
	"time"

	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qscript"
)

// Origin describes the HTTP request a script request arrived with.
type Origin struct {
	Method string
	Addr   netip.Addr
}

// Subject is everything a validator may look at.
type Subject struct {
	Request *qscript.Request
	Handler *qscript.Handler
	Mapping *qscript.Mapping
	// DefaultKey is the configuration's global key.
	DefaultKey string
	// Origin is nil for requests that did not come in over HTTP, such as
	// queued or recurring jobs.
	Origin *Origin
	Now    time.Time
}

// ExpectedKey is the key the subject must present.
func (s *Subject) ExpectedKey() string {
	cfg := qscript.Config{DefaultKey: s.DefaultKey}
	return cfg.ResolveKey(s.Handler, s.Mapping)
}

func (s *Subject) trigger() *qscript.Trigger {
	if s.Mapping == nil {
		return nil
	}
	return s.Mapping.Trigger
}

// Validator is one admission check. Check returns the reasons the subject is
// rejected, or nothing.
type Validator struct {
	Name  string
	Check func(*Subject) []string
}

// Chain runs validators in order and stops at the first one that rejects.
type Chain struct {
	cfg        *qscript.Config
	validators []Validator
	now        func() time.Time
}

// Stage names, in chain order.
const (
	StageInput  = "input"
	StageMethod = "method"
	StageIP     = "ip"
	StageKey    = "key"
	StageTime   = "time"
)

// NewChain builds the standard chain: input, method, ip, key, time.
func NewChain(cfg *qscript.Config) *Chain {
	return &Chain{
		cfg: cfg,
		validators: []Validator{
			{Name: StageInput, Check: checkInput},
			{Name: StageMethod, Check: checkMethod},
			{Name: StageIP, Check: checkIP},
			{Name: StageKey, Check: checkKey},
			{Name: StageTime, Check: checkTime},
		},
		now: time.Now,
	}
}

// WithClock replaces the clock used for time frame checks.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.now = now
	return c
}

// Subject builds the validation subject for a request.
func (c *Chain) Subject(req *qscript.Request, origin *Origin) *Subject {
	h, m := c.cfg.Lookup(req.Script)
	return &Subject{
		Request:    req,
		Handler:    h,
		Mapping:    m,
		DefaultKey: c.cfg.DefaultKey,
		Origin:     origin,
		Now:        c.now(),
	}
}

// Validate returns the name of the first validator rejecting the subject and
// its reasons. Both are empty when every validator passes.
func (c *Chain) Validate(s *Subject) (stage string, reasons []string) {
	for _, v := range c.validators {
		if r := v.Check(s); len(r) > 0 {
			return v.Name, r
		}
	}
	return "", nil
}

// Check validates req and returns a validation error carrying the rejection
// reasons, or nil.
func (c *Chain) Check(req *qscript.Request, origin *Origin) error {
	_, reasons := c.Validate(c.Subject(req, origin))
	return qerr.Reject(qerr.CodeValidation, reasons...)
}

// Stages lists the validator names in evaluation order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.validators))
	for i, v := range c.validators {
		names[i] = v.Name
	}
	return names
}

func checkInput(s *Subject) []string {
	name := strings.TrimSpace(s.Request.Script)
	if name == "" {
		return []string{"script name is required"}
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return []string{"script name must not contain path separators or '..'"}
	}
	return nil
}
