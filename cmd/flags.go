package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/chain"
	"github.com/aimat-lab/AutoSlurm/internal/template"
	"github.com/spf13/pflag"
)

// keyValueList is a pflag.Value for "-o key=value,key2=value2". The flag may
// be repeated; later pairs win.
type keyValueList struct {
	values map[string]string
}

var _ pflag.Value = (*keyValueList)(nil)

func newKeyValueList() *keyValueList {
	return &keyValueList{values: map[string]string{}}
}

func (l *keyValueList) Set(s string) error {
	for _, pair := range splitPairs(s) {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", pair)
		}
		l.values[key] = strings.TrimSpace(value)
	}
	return nil
}

// splitPairs splits on commas. A part that is not itself key=value is
// appended to the previous value.
func splitPairs(s string) []string {
	var pairs []string
	for _, part := range strings.Split(s, ",") {
		if len(pairs) > 0 && !looksLikePair(part) {
			pairs[len(pairs)-1] += "," + part
			continue
		}
		pairs = append(pairs, part)
	}
	return pairs
}

func looksLikePair(part string) bool {
	key, _, ok := strings.Cut(part, "=")
	if !ok {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (l *keyValueList) String() string {
	keys := make([]string, 0, len(l.values))
	for k := range l.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + l.values[k]
	}
	return strings.Join(parts, ",")
}

func (l *keyValueList) Type() string { return "key=value,..." }

// resumeLimitValue is a pflag.Value for -r/--resumes.
type resumeLimitValue struct {
	limit *chain.ResumeLimit
}

func (v resumeLimitValue) Set(s string) error {
	l, err := chain.ParseResumeLimit(s)
	if err != nil {
		return err
	}
	*v.limit = l
	return nil
}

func (v resumeLimitValue) String() string {
	if v.limit == nil {
		return ""
	}
	return v.limit.String()
}

func (v resumeLimitValue) Type() string { return "int|inf" }

// optIntValue is a pflag.Value for integer settings that accept "none".
type optIntValue struct {
	opt *template.OptInt
}

func (v optIntValue) Set(s string) error {
	n, err := template.ParseOptInt(s)
	if err != nil {
		return err
	}
	v.opt.Set = true
	v.opt.Value = n
	return nil
}

func (v optIntValue) String() string {
	if v.opt == nil || !v.opt.Set {
		return ""
	}
	if v.opt.Value == nil {
		return "none"
	}
	return fmt.Sprint(*v.opt.Value)
}

func (v optIntValue) Type() string { return "int|none" }
