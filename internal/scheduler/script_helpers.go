package scheduler

import (
	"fmt"
	"io"
	"strings"
)

// headerField is one "Key: value" line of the job info header.
type headerField struct {
	Key   string
	Value string
}

// safeJobName converts a job name to a filesystem-safe string.
func safeJobName(name string) string {
	name = strings.ReplaceAll(name, "/", "--")
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' {
			return '_'
		}
		return r
	}, name)
}

// shellQuote wraps s in single quotes for bash.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// writeJobHeader writes the job info header echo block to w.
//
// - jobIDVar is the shell expression for the job ID (e.g. "$ASLURM_JOB_ID").
//
// - fields are printed in order after the job name; empty values are skipped.
func writeJobHeader(w io.Writer, jobIDVar string, jobName string, fields []headerField) {
	fmt.Fprintln(w, "# Print job information")
	fmt.Fprintln(w, "_START_TIME=$SECONDS")
	io.WriteString(w, "_format_time() { local s=$1; printf '%02d:%02d:%02d' $((s/3600)) $((s%3600/60)) $((s%60)); }\n")
	fmt.Fprintln(w, "echo \"========================================\"")
	fmt.Fprintf(w, "echo \"Job ID:     %s\"\n", jobIDVar)
	fmt.Fprintf(w, "echo \"Job Name:   %s\"\n", jobName)
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		pad := 11 - len(f.Key)
		if pad < 1 {
			pad = 1
		}
		fmt.Fprintf(w, "echo \"%s:%s%s\"\n", f.Key, strings.Repeat(" ", pad), f.Value)
	}
	fmt.Fprintln(w, "echo \"PWD:        $(pwd)\"")
	fmt.Fprintf(w, "%s\n", "echo \"Started:    $(date '+%Y-%m-%d %T')\"")
	fmt.Fprintln(w, "echo \"========================================\"")
}

// writeJobFooter writes the job completion footer echo block to w.
// jobIDVar is the shell expression for the job ID (e.g. "$ASLURM_JOB_ID").
func writeJobFooter(w io.Writer, jobIDVar string) {
	fmt.Fprintln(w, "echo \"========================================\"")
	fmt.Fprintf(w, "echo \"Job ID:     %s\"\n", jobIDVar)
	fmt.Fprintln(w, "echo \"Elapsed:    $(_format_time $(($SECONDS - $_START_TIME)))\"")
	fmt.Fprintf(w, "%s\n", "echo \"Completed:  $(date '+%Y-%m-%d %T')\"")
	fmt.Fprintln(w, "echo \"========================================\"")
}
