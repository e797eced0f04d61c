package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
)

var (
	debugMode bool
	localMode bool
	quietMode bool
)

var rootCmd = &cobra.Command{
	Use:   "aslurm [flags] cmd <command...> [cmd <command...>]...",
	Short: "AutoSlurm: fill SLURM job templates, pack sweeps into jobs and chain resumed tasks.",
	Long: `AutoSlurm writes SLURM job scripts from templates and submits them for you.

Every "cmd" word starts a command; "cmdxN" repeats it N times. Commands may
contain sweep markers:
  <[a,b,c]>   list sweep, zipped with the other list sweeps of the command
  <{a,b,c}>   product sweep, combined with every other value

The commands are packed into as few jobs as the template allows. A task that
calls 'aslurm resume -- <command>' before it ends is resubmitted with that
command once its job finishes, up to --resumes times.`,
	Example: `  aslurm cmd python train.py
  aslurm -c horeka cmd python train.py --lr <[1e-3,1e-4]> --bs <[32,64]>
  aslurm -m 8 cmdx4 ./simulate.sh --seed <{1,2,3}>
  aslurm -n 4 -g 2 -r 10 cmd python train.py cmd python eval.py
  aslurm -d -o time=01:00:00,partition=dev cmd ./job.sh`,
	Version:       config.VERSION,
	SilenceErrors: true,
	SilenceUsage:  true,
	Args:          cobra.ArbitraryArgs,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		exe, err := os.Executable()
		if err != nil {
			utils.PrintError("Failed to determine executable path: %v", err)
			os.Exit(ExitError)
		}

		// Step 1: Load defaults (paths, directories, etc.)
		config.LoadDefaults(exe)

		// Step 2: Initialize Viper (read config file, env vars)
		if err := config.InitViper(); err != nil {
			utils.PrintWarning("%v", err)
		}

		// Step 3: Load values from Viper into Global config
		config.LoadFromViper()

		// Step 4: Apply command-line flags (highest priority)
		if quietMode {
			utils.QuietMode = true
		}
		if debugMode {
			utils.DebugMode = true
			config.Global.Debug = true
			utils.PrintDebug("Debug mode enabled")
			utils.PrintDebug("AutoSlurm Version: %s", utils.StyleInfo(config.VERSION))
			utils.PrintDebug("Executable: %s", exe)
			utils.PrintDebug("Runs Directory: %s", config.Global.RunsDir)
			utils.PrintDebug("Journal: %s", config.Global.JournalPath)
			utils.PrintDebug("Template Directories: %v", config.TemplateSearchDirs())
			if config.Global.SchedulerBin != "" {
				utils.PrintDebug("Scheduler Binary: %s", config.Global.SchedulerBin)
			}
		}
		if localMode {
			config.Global.Local = true
			utils.PrintDebug("Local mode enabled (jobs run as local processes)")
		}
	},

	RunE: runSubmit,
}

// initScheduler activates the scheduler for commands that submit or poll jobs.
func initScheduler() (scheduler.Scheduler, error) {
	kind, err := scheduler.Init(config.Global.SchedulerBin, config.Global.Local)
	if err != nil {
		utils.PrintDebug("Scheduler not available: %v", err)
		return nil, err
	}
	utils.PrintDebug("Scheduler initialized: %s", kind)
	return scheduler.RequireActive()
}

// Execute runs the root command and exits with the status of the command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if err == nil {
		return
	}
	if interrupted && errors.Is(err, context.Canceled) {
		utils.PrintWarning("Interrupted; submitted jobs keep running")
		os.Exit(ExitInterrupted)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			utils.PrintError("%v", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeFor(err))
}

func init() {
	// Subcommands are attached to rootCmd in their respective init() functions
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode with verbose output")
	rootCmd.PersistentFlags().BoolVar(&localMode, "local", false, "Run jobs as local background processes instead of submitting them to SLURM")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Only print warnings and errors")
	rootCmd.Flags().SetInterspersed(false)
	registerSubmitFlags(rootCmd)
}
