package cmd

import (
	"fmt"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:     "scheduler [job-id...]",
	Aliases: []string{"sched"},
	Short:   "Display scheduler information",
	Long: `Display information about the detected job scheduler.

Shows the scheduler type, binary path, version and availability. With job IDs,
also polls their state the way a running chain does.`,
	Example: `  aslurm scheduler           # Show scheduler information
  aslurm sched 123456 123457 # Show the state of two jobs`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, err := initScheduler()
	if err != nil {
		utils.PrintMessage("Scheduler Status: %s", utils.StyleError("Not Found"))
		utils.PrintMessage("")
		utils.PrintMessage("sbatch was not found on PATH or at scheduler_bin (%s).", orNone(config.Global.SchedulerBin))
		utils.PrintHint("Use --local to run jobs on this machine")
		return nil
	}

	info := sched.GetInfo()

	// no [ASL] prefix for structured output
	fmt.Println("Scheduler Information:")
	fmt.Printf("  Type:      %s\n", utils.StyleInfo(info.Type))
	if info.Binary != "" {
		fmt.Printf("  Binary:    %s\n", utils.StylePath(info.Binary))
	}
	if info.Version != "" {
		fmt.Printf("  Version:   %s\n", utils.StyleNumber(info.Version))
	}
	fmt.Printf("  Job ID:    %s\n", sched.JobIDVar())
	if info.Available {
		fmt.Printf("  Status:    %s\n", utils.StyleSuccess("Available"))
	} else {
		fmt.Printf("  Status:    %s\n", utils.StyleError("Unavailable"))
	}
	if info.InJob {
		fmt.Println()
		fmt.Println("You are inside a SLURM job; chains started here are submitted as usual.")
	}

	if len(args) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Jobs:")
	for _, id := range args {
		status, err := sched.Poll(cmd.Context(), scheduler.JobHandle{ID: id, Scheduler: scheduler.SchedulerType(info.Type)})
		if err != nil {
			fmt.Printf("  %s  %s\n", utils.StyleName(id), utils.StyleError(err.Error()))
			continue
		}
		fmt.Printf("  %s  %s (%s)\n", utils.StyleName(id), utils.StyleState(status.Raw), status.State)
	}
	return nil
}
