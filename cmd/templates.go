package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/template"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"tpl"},
	Short:   "List and inspect job templates",
	Long: `List and inspect job templates.

Templates are searched in this order (first match wins):
  1. Directories in ASLURM_TEMPLATES_DIRS or templates_dirs
  2. User directory (~/.config/aslurm/templates)
  3. Portable directory (<install-dir>/templates)
  4. System directory (/etc/aslurm/templates)`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := config.TemplateSearchDirs()
		entries, err := template.NewStore(dirs).List()
		if err != nil {
			return withExitCode(err)
		}
		if len(entries) == 0 {
			utils.PrintWarning("No templates found in %v", dirs)
			utils.PrintHint("Put <name>.yaml files into %s", utils.StylePath(config.GetUserTemplateDir()))
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			capacity, desc := "?", ""
			if t, err := template.LoadFile(e.Path); err != nil {
				desc = utils.StyleError("invalid: " + err.Error())
			} else {
				capacity, desc = t.CapacitySummary(), t.Description
			}
			rows = append(rows, []string{e.Name, capacity, desc, e.Path})
		}
		fmt.Println(renderTable([]string{"NAME", "CAPACITY", "DESCRIPTION", "PATH"}, rows, func(row int) bool {
			return entries[row].Shadowed
		}))
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:               "show <name>",
	Short:             "Show a template and its defaults",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: templateNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := template.NewStore(config.TemplateSearchDirs()).Load(args[0])
		if err != nil {
			return withExitCode(err)
		}

		fmt.Println(utils.StyleTitle("Template:"), utils.StyleName(t.Name))
		fmt.Printf("  Path:      %s\n", utils.StylePath(t.Path))
		if t.Description != "" {
			fmt.Printf("  About:     %s\n", t.Description)
		}
		fmt.Printf("  Capacity:  %s\n", t.CapacitySummary())
		if t.ScaleResources != nil {
			fmt.Printf("  Scale:     %v\n", *t.ScaleResources)
		}
		if t.Requires != "" {
			fmt.Printf("  Requires:  aslurm %s\n", t.Requires)
		}
		fmt.Println()

		fmt.Println(utils.StyleTitle("Default fillers:"))
		if len(t.DefaultFillers) == 0 {
			fmt.Printf("  %s\n", utils.StyleInfo("none"))
		}
		keys := make([]string, 0, len(t.DefaultFillers))
		for k := range t.DefaultFillers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", utils.StyleName(k), t.DefaultFillers[k])
		}
		fmt.Println()

		if directives := scheduler.ParseDirectives(t.Script); len(directives) > 0 {
			fmt.Println(utils.StyleTitle("Directives:"))
			for _, d := range directives {
				fmt.Printf("  %s\n", utils.StyleCommand(d.String()))
			}
			fmt.Println()
		}

		fmt.Println(utils.StyleTitle("Script:"))
		os.Stdout.WriteString(t.Script)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	rootCmd.AddCommand(templatesCmd)
}
