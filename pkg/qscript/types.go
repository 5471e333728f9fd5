// Package qscript holds the script configuration model: handlers binding a
// file extension to an interpreter and a scripts directory, the named script
// mappings inside them, and the request shape used to invoke a script.
package qscript

import (
	"path/filepath"
	"strings"
)

// Config is the script configuration, loaded once at startup and read-only
// afterwards.
type Config struct {
	DefaultKey string    `mapstructure:"defaultKey" json:"defaultKey,omitempty"`
	Handlers   []Handler `mapstructure:"handlers" json:"handlers"`
}

// Handler binds a family of scripts sharing an interpreter.
type Handler struct {
	ProcessName     string    `mapstructure:"processName" json:"processName"`
	FileExtension   string    `mapstructure:"fileExtension" json:"fileExtension"`
	ScriptsLocation string    `mapstructure:"scriptsLocation" json:"scriptsLocation"`
	Key             string    `mapstructure:"key" json:"key,omitempty"`
	ScriptsMapping  []Mapping `mapstructure:"scriptsMapping" json:"scriptsMapping,omitempty"`
}

// Mapping is one named script within a handler.
type Mapping struct {
	Name              string   `mapstructure:"name" json:"name"`
	Key               string   `mapstructure:"key" json:"key,omitempty"`
	Trigger           *Trigger `mapstructure:"trigger" json:"trigger,omitempty"`
	RecurringSchedule string   `mapstructure:"recurringSchedule" json:"recurringSchedule,omitempty"`
	DefaultParameters string   `mapstructure:"defaultParameters" json:"defaultParameters,omitempty"`
}

// Trigger is the admission policy attached to a mapping.
type Trigger struct {
	HttpMethod  string      `mapstructure:"httpMethod" json:"httpMethod,omitempty"`
	IpAddresses []string    `mapstructure:"ipAddresses" json:"ipAddresses,omitempty"`
	TimeFrames  []TimeFrame `mapstructure:"timeFrames" json:"timeFrames,omitempty"`
}

// TimeFrame is a daily window in local time, written as HH:MM or HH:MM:SS.
type TimeFrame struct {
	Start string `mapstructure:"start" json:"start"`
	End   string `mapstructure:"end" json:"end"`
}

// Request is one invocation intent, from an HTTP call, an enqueue or a
// recurring trigger.
type Request struct {
	Script     string `json:"script"`
	Key        string `json:"key,omitempty"`
	Parameters string `json:"parameters,omitempty"`
}

// Extension returns the text after the last dot of a script name, or "" when
// there is none.
func Extension(script string) string {
	i := strings.LastIndexByte(script, '.')
	if i < 0 || i == len(script)-1 {
		return ""
	}
	return script[i+1:]
}

// MatchesExtension reports whether the handler serves the given extension.
// The configured extension may carry a leading dot.
func (h *Handler) MatchesExtension(ext string) bool {
	return ext != "" && strings.EqualFold(strings.TrimPrefix(h.FileExtension, "."), ext)
}

// Mapping returns the mapping with the given script name, matched
// case-insensitively, or nil.
func (h *Handler) Mapping(name string) *Mapping {
	for i := range h.ScriptsMapping {
		if strings.EqualFold(h.ScriptsMapping[i].Name, name) {
			return &h.ScriptsMapping[i]
		}
	}
	return nil
}

// RecurringID is the key under which a mapping's recurring trigger is
// registered.
func (h *Handler) RecurringID(m *Mapping) string {
	return h.ProcessName + "_" + m.Name
}

// Handler returns the first handler serving the script's extension, or nil.
func (c *Config) Handler(script string) *Handler {
	ext := Extension(filepath.Base(script))
	for i := range c.Handlers {
		if c.Handlers[i].MatchesExtension(ext) {
			return &c.Handlers[i]
		}
	}
	return nil
}

// Lookup finds the handler and mapping a script name refers to. Either may be
// nil: a script can match a handler without having a mapping of its own.
func (c *Config) Lookup(script string) (*Handler, *Mapping) {
	h := c.Handler(script)
	if h == nil {
		return nil, nil
	}
	return h, h.Mapping(script)
}

// ResolveKey returns the first non-empty of the mapping key, the handler key
// and the default key.
func (c *Config) ResolveKey(h *Handler, m *Mapping) string {
	if m != nil && m.Key != "" {
		return m.Key
	}
	if h != nil && h.Key != "" {
		return h.Key
	}
	return c.DefaultKey
}
