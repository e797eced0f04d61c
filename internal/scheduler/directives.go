package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
)

var directiveRe = regexp.MustCompile(`^\s*#SBATCH\s+(.+)$`)

// Directive is one #SBATCH option of a job script.
type Directive struct {
	Line  int    // 1-based line number
	Flag  string // e.g. "--time" or "-p"
	Value string
}

func (d Directive) String() string {
	if d.Value == "" {
		return d.Flag
	}
	if strings.HasPrefix(d.Flag, "--") {
		return d.Flag + "=" + d.Value
	}
	return d.Flag + " " + d.Value
}

// ParseDirectives returns the #SBATCH options of script in order.
func ParseDirectives(script string) []Directive {
	var out []Directive
	for i, line := range strings.Split(script, "\n") {
		m := directiveRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		opt := stripInlineComment(m[1])
		d := Directive{Line: i + 1}
		if strings.HasPrefix(opt, "--") {
			d.Flag, d.Value, _ = strings.Cut(opt, "=")
		} else {
			flag, value, _ := strings.Cut(opt, " ")
			d.Flag, d.Value = flag, strings.TrimSpace(value)
		}
		out = append(out, d)
	}
	return out
}

func stripInlineComment(s string) string {
	if i := strings.Index(s, " #"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// gpuCount returns the GPU count a directive requests, if it requests GPUs.
func gpuCount(d Directive) (int, bool) {
	switch d.Flag {
	case "--gres":
		for _, entry := range strings.Split(d.Value, ",") {
			parts := strings.Split(entry, ":")
			if parts[0] != "gpu" {
				continue
			}
			if len(parts) == 1 {
				return 1, true
			}
			n, err := strconv.Atoi(parts[len(parts)-1])
			return n, err == nil
		}
	case "--gpus", "-G", "--gpus-per-node":
		v := d.Value
		if i := strings.LastIndex(v, ":"); i >= 0 {
			v = v[i+1:]
		}
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// CheckDirectives compares the directives of a rendered script with the
// batch it runs and describes every disagreement.
func CheckDirectives(script string, b pack.JobBatch) []string {
	var problems []string
	for _, d := range ParseDirectives(script) {
		if n, ok := gpuCount(d); ok && b.Units > 0 && n != b.Units {
			problems = append(problems, fmt.Sprintf("line %d: %s requests %d GPU(s) but the tasks use %d", d.Line, d, n, b.Units))
		}
		if (d.Flag == "--time" || d.Flag == "-t") && b.Params.TimeLimit != "" && d.Value != b.Params.TimeLimit {
			problems = append(problems, fmt.Sprintf("line %d: %s differs from the time setting %s", d.Line, d, b.Params.TimeLimit))
		}
		if (d.Flag == "--partition" || d.Flag == "-p") && b.Params.Partition != "" && d.Value != b.Params.Partition {
			problems = append(problems, fmt.Sprintf("line %d: %s differs from the partition setting %s", d.Line, d, b.Params.Partition))
		}
	}
	return problems
}
