package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/journal"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [chain-id]",
	Short: "List recent chains, or the jobs of one chain",
	Example: `  aslurm history
  aslurm history -n 50
  aslurm history 2026-03-01_12-00-00_1a2b3c4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of chains to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !utils.FileExists(config.Global.JournalPath) {
		utils.PrintNote("No chains recorded yet (%s)", utils.StylePath(config.Global.JournalPath))
		return nil
	}
	store, err := journal.Open(config.Global.JournalPath)
	if err != nil {
		return withExitCode(err)
	}
	defer store.Close()

	if len(args) == 1 {
		return showChainJobs(cmd, store, args[0])
	}

	chains, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return withExitCode(err)
	}
	rows := make([][]string, 0, len(chains))
	for _, c := range chains {
		status := "-"
		if c.Status != nil {
			status = fmt.Sprint(*c.Status)
		}
		mode := ""
		if c.DryRun {
			mode = "dry run"
		}
		rows = append(rows, []string{
			c.ID,
			c.Template,
			fmt.Sprint(c.Tasks),
			fmt.Sprint(c.Generations),
			c.MaxResumes.String(),
			c.State,
			status,
			formatDuration(c.Started, c.Finished),
			mode,
		})
	}
	fmt.Println(renderTable(
		[]string{"CHAIN", "TEMPLATE", "TASKS", "GENS", "MAX RESUMES", "STATE", "STATUS", "DURATION", ""},
		rows,
		func(row int) bool { return chains[row].DryRun },
	))
	return nil
}

func showChainJobs(cmd *cobra.Command, store *journal.Store, chainID string) error {
	jobs, err := store.Jobs(cmd.Context(), chainID)
	if err != nil {
		return withExitCode(err)
	}
	if len(jobs) == 0 {
		utils.PrintWarning("No jobs recorded for chain %s", chainID)
		return nil
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		slots := make([]string, len(j.Slots))
		for i, s := range j.Slots {
			slots[i] = fmt.Sprint(s)
		}
		id := j.JobID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{fmt.Sprint(j.Generation), fmt.Sprint(j.Batch), id, strings.Join(slots, " "), fmt.Sprint(j.Units), j.ScriptPath, j.Error})
	}
	fmt.Println(renderTable(
		[]string{"GEN", "JOB", "JOB ID", "SLOTS", "GPUS", "SCRIPT", "ERROR"},
		rows,
		func(row int) bool { return jobs[row].Error != "" },
	))
	return nil
}

func formatDuration(start, end time.Time) string {
	if start.IsZero() {
		return "-"
	}
	if end.IsZero() {
		return "running since " + start.Local().Format("2006-01-02 15:04")
	}
	return utils.FormatDuration(end.Sub(start))
}
