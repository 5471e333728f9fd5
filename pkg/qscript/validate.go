package qscript

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration and returns warnings for problems that do
// not prevent serving. Errors are aggregated into a single message. Relative
// scripts locations are checked against baseDir; nothing is created.
func (c *Config) Validate(baseDir string) (warnings []string, err error) {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, "  ❌ "+fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if len(c.Handlers) == 0 {
		fail("at least one handler must be configured")
	}
	if c.DefaultKey == "" {
		warn("defaultKey is empty, scripts without a handler or mapping key will be rejected")
	}

	seen := map[string]string{}
	for i := range c.Handlers {
		h := &c.Handlers[i]
		label := h.ProcessName
		if label == "" {
			label = fmt.Sprintf("handlers[%d]", i)
		}

		if h.ProcessName == "" {
			fail("%s: processName is required", label)
		}
		if h.FileExtension == "" {
			fail("%s: fileExtension is required", label)
		} else {
			ext := strings.ToLower(strings.TrimPrefix(h.FileExtension, "."))
			if prev, ok := seen[ext]; ok {
				fail("%s: extension %q is already handled by %s", label, ext, prev)
			}
			seen[ext] = label
		}
		if h.ScriptsLocation == "" {
			fail("%s: scriptsLocation is required", label)
		} else {
			dir := h.ScriptsLocation
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(baseDir, dir)
			}
			if st, statErr := os.Stat(dir); statErr != nil || !st.IsDir() {
				warn("%s: scripts directory %s does not exist", label, dir)
			}
		}

		names := map[string]bool{}
		for j := range h.ScriptsMapping {
			m := &h.ScriptsMapping[j]
			where := fmt.Sprintf("%s.scriptsMapping[%d]", label, j)
			if m.Name != "" {
				where = label + "/" + m.Name
			}

			switch {
			case m.Name == "":
				fail("%s: name is required", where)
			case strings.ContainsAny(m.Name, `/\`) || strings.Contains(m.Name, ".."):
				fail("%s: name must be a bare file name", where)
			case !h.MatchesExtension(Extension(m.Name)):
				fail("%s: extension does not match handler extension %q", where, h.FileExtension)
			}
			if names[strings.ToLower(m.Name)] {
				fail("%s: duplicate mapping", where)
			}
			names[strings.ToLower(m.Name)] = true

			if m.Trigger != nil {
				validateTrigger(m.Trigger, where, fail)
			}

			if m.RecurringSchedule != "" {
				if _, perr := cron.ParseStandard(m.RecurringSchedule); perr != nil {
					fail("%s: invalid recurringSchedule %q: %v", where, m.RecurringSchedule, perr)
				}
				if c.ResolveKey(h, m) == "" {
					fail("%s: recurring mapping has no key to run with", where)
				}
			}
		}
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("script configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return warnings, nil
}

func validateTrigger(t *Trigger, where string, fail func(string, ...any)) {
	if t.HttpMethod != "" && !slices.Contains(Methods, strings.ToUpper(t.HttpMethod)) {
		fail("%s: unsupported httpMethod %q", where, t.HttpMethod)
	}
	for _, entry := range t.IpAddresses {
		if _, err := ParsePrefix(entry); err != nil {
			fail("%s: invalid ip address %q", where, entry)
		}
	}
	for k, tf := range t.TimeFrames {
		if _, err := ParseClock(tf.Start); err != nil {
			fail("%s: timeFrames[%d].start: %v", where, k, err)
		}
		if _, err := ParseClock(tf.End); err != nil {
			fail("%s: timeFrames[%d].end: %v", where, k, err)
		}
	}
}
