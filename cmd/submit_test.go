package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/journal"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/template"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/pflag"
)

const gpuTemplate = `description: two GPUs, one per task
NO_gpus: 2
gpus_per_task: 1
default_fillers:
  name: unit
template: |
  #!/bin/bash
  #SBATCH --job-name=<name>
  #SBATCH --gres=gpu:<NO_gpus>
`

// setupSubmit points config, templates and run directories into a temp dir
// and resets the flag state left by earlier executions of rootCmd.
func setupSubmit(t *testing.T) (runsDir string) {
	t.Helper()
	base := t.TempDir()
	runsDir = filepath.Join(base, "runs")
	tplDir := filepath.Join(base, "templates")
	if err := os.MkdirAll(tplDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tplDir, "gpu.yaml"), []byte(gpuTemplate), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", base)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("ASLURM_RUNS_DIR", runsDir)
	t.Setenv("ASLURM_TEMPLATES_DIRS", tplDir)
	t.Setenv("ASLURM_POLL_INTERVAL", "20ms")

	templateName, dryRun, scaleFlag = "", false, false
	overwrites.values = map[string]string{}
	overrides = template.Overrides{}
	maxResumes = defaultMaxResumes
	debugMode, localMode, quietMode = false, false, false
	for _, fs := range []*pflag.FlagSet{rootCmd.Flags(), rootCmd.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
	scheduler.ClearActiveScheduler()
	utils.QuietMode = true
	t.Cleanup(func() { utils.QuietMode = false })
	return runsDir
}

func executeRoot(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// runDirs returns the run directories created under runsDir.
func runDirs(t *testing.T, runsDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(runsDir, e.Name()))
		}
	}
	return dirs
}

func readScript(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("script not written: %v", err)
	}
	return string(data)
}

func TestSubmitDryRunWritesGenerationZero(t *testing.T) {
	runsDir := setupSubmit(t)

	if err := executeRoot(t, "--local", "-d", "-c", "gpu", "cmd", "echo", "<[a,b,c]>"); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	dirs := runDirs(t, runsDir)
	if len(dirs) != 1 {
		t.Fatalf("expected one run directory, got %v", dirs)
	}
	run := dirs[0]

	first := readScript(t, filepath.Join(run, "gen0_job0.sh"))
	for _, want := range []string{
		"#SBATCH --job-name=unit",
		"#SBATCH --gres=gpu:2",
		"CUDA_VISIBLE_DEVICES=0; echo a) &>",
		"CUDA_VISIBLE_DEVICES=1; echo b) &>",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("gen0_job0.sh missing %q:\n%s", want, first)
		}
	}
	second := readScript(t, filepath.Join(run, "gen0_job1.sh"))
	if !strings.Contains(second, "echo c) &>") || strings.Contains(second, "echo a)") {
		t.Errorf("gen0_job1.sh should hold only the third task:\n%s", second)
	}
	if _, err := os.Stat(filepath.Join(run, "gen0_job2.sh")); !os.IsNotExist(err) {
		t.Errorf("expected two jobs for three tasks with two GPUs")
	}
	if _, err := os.Stat(filepath.Join(run, "events.log")); err != nil {
		t.Errorf("event log not written: %v", err)
	}

	store, err := journal.Open(filepath.Join(runsDir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	chains, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 {
		t.Fatalf("journal holds %d chains, want 1", len(chains))
	}
	c := chains[0]
	if c.ID != filepath.Base(run) || !c.DryRun || c.State != "DONE" || c.Tasks != 3 || c.Generations != 1 {
		t.Errorf("journal record = %+v", c)
	}
}

func TestSubmitMaxTasksFlag(t *testing.T) {
	runsDir := setupSubmit(t)

	if err := executeRoot(t, "--local", "-d", "-c", "gpu", "-m", "3", "cmdx3", "echo", "x"); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	dirs := runDirs(t, runsDir)
	if len(dirs) != 1 {
		t.Fatalf("expected one run directory, got %v", dirs)
	}
	script := readScript(t, filepath.Join(dirs[0], "gen0_job0.sh"))
	if n := strings.Count(script, "; echo x) &>"); n != 3 {
		t.Errorf("expected 3 tasks in one job, found %d:\n%s", n, script)
	}
	if strings.Contains(script, "CUDA_VISIBLE_DEVICES") {
		t.Errorf("-m should drop the GPU keys of the template:\n%s", script)
	}
}

func TestSubmitConfigErrorsExitBeforeRunDir(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"list length mismatch", []string{"--local", "-d", "-c", "gpu", "cmd", "echo", "<[a,b]>", "<[x]>"}},
		{"empty sweep value", []string{"--local", "-d", "-c", "gpu", "cmd", "echo", "<[a,,b]>"}},
		{"no capacity", []string{"--local", "-d", "-c", "gpu", "-n", "0", "cmd", "echo", "a"}},
		{"task wider than job", []string{"--local", "-d", "-c", "gpu", "-g", "4", "cmd", "echo", "a"}},
		{"unknown template", []string{"--local", "-d", "-c", "missing", "cmd", "echo", "a"}},
		{"bad time", []string{"--local", "-d", "-c", "gpu", "--time", "soon", "cmd", "echo", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runsDir := setupSubmit(t)

			err := executeRoot(t, tt.args...)
			var ee *exitError
			if !errors.As(err, &ee) {
				t.Fatalf("expected an exit error, got %v", err)
			}
			if ee.code != ExitConfig {
				t.Errorf("exit code = %d, want %d (%v)", ee.code, ExitConfig, ee.err)
			}
			if dirs := runDirs(t, runsDir); len(dirs) != 0 {
				t.Errorf("run directory created for a configuration error: %v", dirs)
			}
		})
	}
}

func TestSubmitLocalChainResumes(t *testing.T) {
	runsDir := setupSubmit(t)

	writeResume := `echo "echo again" > "$ASLURM_RESUME_DIR/${ASLURM_JOB_ID}_${ASLURM_SLOT}.resume"`
	if err := executeRoot(t, "--local", "-c", "gpu", "-r", "1", "cmd", "sh", "-c", writeResume); err != nil {
		t.Fatalf("local chain failed: %v", err)
	}

	dirs := runDirs(t, runsDir)
	if len(dirs) != 1 {
		t.Fatalf("expected one run directory, got %v", dirs)
	}
	next := readScript(t, filepath.Join(dirs[0], "gen1_job0.sh"))
	if !strings.Contains(next, "; echo again) &>") {
		t.Errorf("generation 1 should run the resume command:\n%s", next)
	}
	if _, err := os.Stat(filepath.Join(dirs[0], "gen2_job0.sh")); !os.IsNotExist(err) {
		t.Errorf("-r 1 allows only one resubmission")
	}

	store, err := journal.Open(filepath.Join(runsDir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	chains, err := store.Recent(context.Background(), 1)
	if err != nil || len(chains) != 1 {
		t.Fatalf("Recent: %v, %d chains", err, len(chains))
	}
	if chains[0].Generations != 2 || chains[0].State != "DONE" || chains[0].DryRun {
		t.Errorf("journal record = %+v", chains[0])
	}
}
