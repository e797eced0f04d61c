package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/chain"
	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/journal"
	"github.com/aimat-lab/AutoSlurm/internal/resume"
	"github.com/aimat-lab/AutoSlurm/internal/runs"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/sweep"
	"github.com/aimat-lab/AutoSlurm/internal/template"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// defaultMaxResumes bounds chains unless -r says otherwise.
const defaultMaxResumes chain.ResumeLimit = 5

var (
	templateName string
	dryRun       bool
	overwrites   = newKeyValueList()
	overrides    template.Overrides
	maxResumes   = defaultMaxResumes
	scaleFlag    bool
)

func registerSubmitFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&templateName, "config-name", "c", "", "Template name or path (default: chosen by hostname)")
	f.VarP(optIntValue{&overrides.NoGpus}, "num-gpus", "n", "Total GPUs per job (NO_gpus), or none")
	f.VarP(optIntValue{&overrides.GpusPerTask}, "gpus-per-task", "g", "GPUs per task, or none")
	f.VarP(optIntValue{&overrides.MaxTasks}, "max-tasks", "m", "Maximum tasks per job, or none")
	f.VarP(overwrites, "overwrite", "o", "Override template fillers (key1=value1,key2=value2)")
	f.StringVar(&overrides.Time, "time", "", "Job time limit (e.g. 02:00:00, 1-00:00:00, 90m)")
	f.StringVarP(&overrides.Partition, "partition", "p", "", "Partition to submit to")
	f.BoolVar(&scaleFlag, "scale-resources", false, "Request only the GPUs the tasks of each job use")
	f.VarP(resumeLimitValue{&maxResumes}, "resumes", "r", "Maximum resubmissions per task, or inf")
	f.BoolVarP(&dryRun, "dry-run", "d", false, "Write the job scripts without submitting them")

	_ = cmd.RegisterFlagCompletionFunc("config-name", templateNameCompletion)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	if cmd.Flags().Changed("scale-resources") {
		overrides.ScaleResources = &scaleFlag
	}

	specs, err := sweep.SplitArgs(args)
	if err != nil {
		if errors.Is(err, sweep.ErrNoCommands) {
			utils.PrintHint("Start every command with %s, e.g. %s", utils.StyleCommand("cmd"), utils.StyleCommand("aslurm cmd python train.py"))
		}
		return withExitCode(err)
	}

	tmpl, settings, err := resolveSettings()
	if err != nil {
		return withExitCode(err)
	}

	// validate everything that can fail before a run directory exists
	commands, err := sweep.ExpandAll(specs)
	if err != nil {
		return withExitCode(err)
	}
	capacity := settings.Capacity()
	perJob, err := capacity.MaxTasksPerJob()
	if err != nil {
		return withExitCode(err)
	}
	utils.PrintMessage("Template %s: %s task(s), up to %s per job (%s)",
		utils.StyleName(tmpl.Name), utils.StyleNumber(len(commands)), utils.StyleNumber(perJob), capacity)

	sched, err := initScheduler()
	if err != nil && !dryRun {
		utils.PrintHint("Use %s to run the jobs on this machine, or %s to only write the scripts", utils.StyleCommand("--local"), utils.StyleCommand("--dry-run"))
		return withExitCode(err)
	}
	if sched != nil && scheduler.IsInsideJob() && !config.Global.Local {
		utils.PrintNote("Submitting from inside a SLURM job")
	}

	runDir, err := runs.New(config.Global.RunsDir, time.Now())
	if err != nil {
		return withExitCode(err)
	}
	utils.PrintDebug("Run directory: %s", runDir.Root)

	renderer := &scheduler.Renderer{
		Preamble:      tmpl.Script,
		Fillers:       settings.FillerMap(),
		GlobalFillers: config.Global.GlobalFillers,
		JobName:       tmpl.Name,
		ResumeDir:     runDir.ResumeDir(),
		LogDir:        runDir.LogDir(),
	}
	emitter, err := scheduler.NewEmitter(sched, renderer, runDir.ScriptDir(), dryRun)
	if err != nil {
		return withExitCode(err)
	}

	events, closeEvents, err := openEventLog(runDir.EventsPath())
	if err != nil {
		return withExitCode(err)
	}
	defer closeEvents()

	var poller chain.Poller
	if sched != nil {
		poller = sched
	}
	ctrl := chain.NewController(emitter, poller, resume.NewFileStore(runDir.ResumeDir()))
	ctrl.Log = events
	ctrl.PollInterval = config.Global.PollInterval

	if store, err := journal.Open(config.Global.JournalPath); err != nil {
		utils.PrintWarning("Chain history disabled: %v", err)
	} else {
		defer store.Close()
		ctrl.Recorder = store.Recorder()
	}

	res, err := ctrl.Run(cmd.Context(), chain.Request{
		ID:         runDir.ID,
		Template:   tmpl.Name,
		Specs:      specs,
		Capacity:   capacity,
		Policy:     settings.Policy(),
		Params:     settings.Params(),
		MaxResumes: maxResumes,
		DryRun:     dryRun,
	})
	printSummary(runDir, res)
	return withExitCode(err)
}

// resolveSettings selects and loads the template and merges it with the
// command-line settings.
func resolveSettings() (*template.Template, *template.Settings, error) {
	name, err := template.Select(templateName, config.Global.HostnameTemplates, config.Global.DefaultTemplate)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := template.NewStore(config.TemplateSearchDirs()).Load(name)
	if err != nil {
		return nil, nil, err
	}
	settings, err := template.Merge(tmpl, overwrites.values, overrides, config.Global.ScaleResources)
	if err != nil {
		return nil, nil, err
	}
	if settings.Time != "" {
		normalized, err := scheduler.NormalizeTimeLimit(settings.Time)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: time %q: %v", template.ErrInvalidValue, settings.Time, err)
		}
		settings.Time = normalized
	}
	return tmpl, settings, nil
}

// openEventLog opens the run's JSON event log. With --debug the events are
// also shown on stderr.
func openEventLog(path string) (zerolog.Logger, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, utils.PermFile)
	if err != nil {
		return zerolog.Nop(), func() {}, fmt.Errorf("failed to open event log: %w", err)
	}
	var w io.Writer = f
	if config.Global.Debug {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(w).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}

func printSummary(runDir *runs.Dir, res *chain.Result) {
	if res == nil {
		return
	}
	jobs := 0
	for _, g := range res.Generations {
		jobs += len(g.Batches)
	}
	switch {
	case dryRun && res.Err == nil:
		utils.PrintSuccess("Dry run: wrote %s job script(s) to %s", utils.StyleNumber(jobs), utils.StylePath(runDir.Root))
	case res.Err == nil:
		resumed := 0
		for _, n := range res.ResumeCounts {
			resumed += n
		}
		utils.PrintSuccess("Chain %s %s after %s generation(s), %s job(s), %s resume(s)",
			utils.StyleName(res.ID), utils.StyleState(string(res.State)),
			utils.StyleNumber(len(res.Generations)), utils.StyleNumber(jobs), utils.StyleNumber(resumed))
	default:
		utils.PrintNote("Chain %s stopped in %s; scripts and logs are in %s",
			utils.StyleName(res.ID), utils.StyleState(string(res.State)), utils.StylePath(runDir.Root))
	}
}

func templateNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	entries, err := template.NewStore(config.TemplateSearchDirs()).List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, e := range entries {
		if !e.Shadowed {
			names = append(names, e.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
