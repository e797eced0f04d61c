package cmd

import (
	"errors"

	"github.com/aimat-lab/AutoSlurm/internal/resume"
	"github.com/aimat-lab/AutoSlurm/internal/sweep"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
)

var resumeIfElapsed string

var resumeCmd = &cobra.Command{
	Use:   "resume [--if-elapsed DURATION] -- <command...>",
	Short: "Ask for this task to be continued in the next job",
	Long: `Record the command that continues the current task.

Run this inside an aslurm job, typically right before the task exits because
it is running out of time. When the job has finished, aslurm submits a new job
that runs <command> in the same slot.

With --if-elapsed the request is only written when the job has been running
for at least DURATION; otherwise nothing happens and the exit status is 1, so
a script can write "aslurm resume --if-elapsed 23h -- ... && exit 0".`,
	Example: `  aslurm resume -- python train.py --checkpoint last.ckpt
  aslurm resume --if-elapsed 1-23:00:00 -- ./simulate.sh --restart state.bin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeIfElapsed, "if-elapsed", "", "Only write the request after the job has run this long (e.g. 23h, 23:30:00)")
	resumeCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if resumeIfElapsed != "" {
		limit, err := utils.ParseDuration(resumeIfElapsed)
		if err != nil {
			return &exitError{code: ExitConfig, err: err}
		}
		timer := resume.TimerFromEnv(limit)
		if !timer.LimitReached() {
			utils.PrintDebug("Job has run %s of %s; not resuming yet", utils.FormatDuration(timer.Elapsed()), utils.FormatDuration(limit))
			return &exitError{code: ExitError}
		}
	}

	path, err := resume.Write(sweep.JoinWords(args))
	if err != nil {
		if errors.Is(err, resume.ErrNotInJob) {
			utils.PrintHint("aslurm resume only works inside a job started by aslurm")
		}
		return withExitCode(err)
	}
	utils.PrintMessage("Resume request written to %s", utils.StylePath(path))
	return nil
}
