package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/config"
)

// MatchHostname returns the template mapped to hostname. Patterns are regular
// expressions anchored at the start of the hostname. Exactly one mapping
// must match.
func MatchHostname(mappings []config.HostnameMapping, hostname string) (string, error) {
	var matched []config.HostnameMapping
	for _, m := range mappings {
		re, err := regexp.Compile("^(?:" + m.Pattern + ")")
		if err != nil {
			return "", fmt.Errorf("%w: hostname pattern %q: %v", ErrInvalidValue, m.Pattern, err)
		}
		if re.MatchString(hostname) {
			matched = append(matched, m)
		}
	}

	switch len(matched) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNoHostnameMatch, hostname)
	case 1:
		return matched[0].Template, nil
	default:
		names := make([]string, len(matched))
		for i, m := range matched {
			names[i] = fmt.Sprintf("%s -> %s", m.Pattern, m.Template)
		}
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousHostname, hostname, strings.Join(names, ", "))
	}
}

// Select picks the template name: an explicit name wins, then the hostname
// mappings, then the configured default template.
func Select(explicit string, mappings []config.HostnameMapping, defaultName string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if len(mappings) > 0 {
		hostname, err := os.Hostname()
		if err != nil {
			return "", fmt.Errorf("failed to read hostname: %w", err)
		}
		name, err := MatchHostname(mappings, hostname)
		if !errors.Is(err, ErrNoHostnameMatch) || defaultName == "" {
			return name, err
		}
	}
	if defaultName != "" {
		return defaultName, nil
	}
	return "", fmt.Errorf("%w (pass --config-name or set default_template)", ErrNoHostnameMatch)
}
