package qpolicy

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

// checkMethod and checkIP only apply to requests with an HTTP origin.

func checkMethod(s *Subject) []string {
	t := s.trigger()
	if s.Origin == nil || t == nil || t.HttpMethod == "" {
		return nil
	}
	if !strings.EqualFold(s.Origin.Method, t.HttpMethod) {
		return []string{fmt.Sprintf("HTTP method %s is not allowed for %s, expected %s",
			strings.ToUpper(s.Origin.Method), s.Request.Script, strings.ToUpper(t.HttpMethod))}
	}
	return nil
}

func checkIP(s *Subject) []string {
	t := s.trigger()
	if s.Origin == nil || t == nil || len(t.IpAddresses) == 0 {
		return nil
	}
	if !s.Origin.Addr.IsValid() {
		return []string{"caller address could not be determined"}
	}
	if !t.AllowsAddr(s.Origin.Addr) {
		return []string{fmt.Sprintf("IP address %s is not allowed for %s", s.Origin.Addr, s.Request.Script)}
	}
	return nil
}

func checkKey(s *Subject) []string {
	expected := s.ExpectedKey()
	if expected == "" {
		return []string{fmt.Sprintf("no access key is configured for %s", s.Request.Script)}
	}
	if s.Request.Key == "" {
		return []string{"access key is required"}
	}
	if subtle.ConstantTimeCompare([]byte(s.Request.Key), []byte(expected)) != 1 {
		return []string{"invalid access key"}
	}
	return nil
}

func checkTime(s *Subject) []string {
	t := s.trigger()
	if t == nil || len(t.TimeFrames) == 0 {
		return nil
	}

	var reasons, windows []string
	for _, tf := range t.TimeFrames {
		ok, err := tf.Contains(s.Now)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("time frame %s: %v", tf, err))
			continue
		}
		if ok {
			return nil
		}
		windows = append(windows, tf.String())
	}
	return append(reasons, fmt.Sprintf("current time %s is outside the allowed time frames (%s)",
		s.Now.Format("15:04:05"), strings.Join(windows, ", ")))
}
