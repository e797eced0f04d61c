package scheduler

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
)

// fillerRe matches <key> placeholders in template text.
var fillerRe = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>`)

// Renderer turns a JobBatch into a job script: the template preamble with
// its placeholders filled, followed by one background line per task.
type Renderer struct {
	Preamble      string            // template text with <key> placeholders
	Fillers       map[string]string // template fillers
	GlobalFillers map[string]string // matched case-insensitively, applied after Fillers
	JobName       string
	ResumeDir     string
	LogDir        string
	JobIDVar      string // shell expression for the scheduler's job ID
}

// JobNameFor returns the job name of batch b in generation gen.
func (r *Renderer) JobNameFor(gen int, b pack.JobBatch) string {
	base := r.JobName
	if base == "" {
		base = "aslurm"
	}
	return safeJobName(fmt.Sprintf("%s_g%d_j%d", base, gen, b.Index))
}

// batchFillers are derived from the batch itself and win over template fillers.
func (r *Renderer) batchFillers(gen int, b pack.JobBatch) map[string]string {
	f := map[string]string{
		"job_name":   r.JobNameFor(gen, b),
		"num_tasks":  strconv.Itoa(len(b.Tasks)),
		"generation": strconv.Itoa(gen),
	}
	if b.Units > 0 {
		f["NO_gpus"] = strconv.Itoa(b.Units)
	}
	if b.Params.TimeLimit != "" {
		f["time"] = b.Params.TimeLimit
	}
	if b.Params.Partition != "" {
		f["partition"] = b.Params.Partition
	}
	return f
}

// FillPreamble substitutes placeholders: batch and template fillers first,
// then global fillers, so template filler values may use global fillers.
// Unknown placeholders are left in place.
func (r *Renderer) FillPreamble(gen int, b pack.JobBatch) string {
	local := r.batchFillers(gen, b)
	text := fill(r.Preamble, func(key string) (string, bool) {
		if v, ok := local[key]; ok {
			return v, true
		}
		v, ok := r.Fillers[key]
		return v, ok
	})

	global := make(map[string]string, len(r.GlobalFillers))
	for k, v := range r.GlobalFillers {
		global[strings.ToLower(k)] = v
	}
	return fill(text, func(key string) (string, bool) {
		v, ok := global[strings.ToLower(key)]
		return v, ok
	})
}

func fill(text string, lookup func(string) (string, bool)) string {
	return fillerRe.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := lookup(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

// Unresolved returns the distinct placeholder names still present in text, sorted.
func Unresolved(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range fillerRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Render writes the job script for batch b of generation gen to w.
func (r *Renderer) Render(w io.Writer, gen int, b pack.JobBatch) error {
	bw := bufio.NewWriter(w)
	jobIDVar := r.JobIDVar
	if jobIDVar == "" {
		jobIDVar = "$SLURM_JOB_ID"
	}

	preamble := r.FillPreamble(gen, b)
	if !strings.HasPrefix(preamble, "#!") {
		fmt.Fprintln(bw, "#!/bin/bash")
	}
	fmt.Fprint(bw, preamble)
	if !strings.HasSuffix(preamble, "\n") {
		fmt.Fprintln(bw)
	}
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, "# aslurm generation %d, job %d\n", gen, b.Index)
	fmt.Fprintf(bw, "export ASLURM_JOB_ID=\"%s\"\n", jobIDVar)
	fmt.Fprintf(bw, "export ASLURM_GENERATION=%d\n", gen)
	io.WriteString(bw, "export ASLURM_JOB_START=$(date +%s)\n")
	fmt.Fprintf(bw, "export ASLURM_RESUME_DIR=%s\n", shellQuote(r.ResumeDir))
	fmt.Fprintf(bw, "mkdir -p %s %s\n", shellQuote(r.LogDir), shellQuote(r.ResumeDir))
	fmt.Fprintln(bw)

	writeJobHeader(bw, "$ASLURM_JOB_ID", r.JobNameFor(gen, b), []headerField{
		{"Generation", strconv.Itoa(gen)},
		{"Tasks", strconv.Itoa(len(b.Tasks))},
		{"Slots", joinInts(b.Slots(), " ")},
		{"Units", unitsField(b.Units)},
		{"Time", b.Params.TimeLimit},
		{"Partition", b.Params.Partition},
	})
	fmt.Fprintln(bw)

	for pos, t := range b.Tasks {
		fmt.Fprintln(bw, r.taskLine(b, pos, t))
	}
	fmt.Fprintln(bw, "wait")
	fmt.Fprintln(bw)
	writeJobFooter(bw, "$ASLURM_JOB_ID")

	return bw.Flush()
}

// RenderString returns the job script as a string.
func (r *Renderer) RenderString(gen int, b pack.JobBatch) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, gen, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// taskLine runs one task in a background subshell so the exported variables
// reach every part of a compound command.
func (r *Renderer) taskLine(b pack.JobBatch, pos int, t pack.Task) string {
	env := fmt.Sprintf("ASLURM_SLOT=%d SLURM_SUBMIT_TASK_INDEX=%d", t.Slot, t.Slot)
	if devices := b.UnitRange(pos); len(devices) > 0 {
		env += " CUDA_VISIBLE_DEVICES=" + joinInts(devices, ",")
	}
	logPath := fmt.Sprintf("%s/slurm-${ASLURM_JOB_ID}_%d.out", shellQuote(r.LogDir), t.Slot)
	return fmt.Sprintf("(export %s; %s) &> %s &", env, t.Command, logPath)
}

func joinInts(nums []int, sep string) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, sep)
}

func unitsField(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
