package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configKeys is the list of known scalar configuration keys
var configKeys = []string{
	"default_template",
	"journal_path",
	"poll_interval",
	"runs_dir",
	"scale_resources",
	"scheduler_bin",
}

// listKeys can only be edited in the config file
var listKeys = []string{
	"global_fillers",
	"hostname_templates",
	"templates_dirs",
}

// configKeysCompletion returns config keys for shell completion
func configKeysCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return configKeys, cobra.ShellCompDirectiveNoFileComp
	}
	if len(args) == 1 {
		return configValueCompletion(args[0]), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// configValueCompletion returns suggested values for a config key
func configValueCompletion(key string) []string {
	switch key {
	case "scale_resources":
		return []string{"true", "false"}
	case "poll_interval":
		return []string{"10s", "30s", "1m", "5m"}
	default:
		return nil
	}
}

// getConfigEnvVars returns the environment variables that override config keys, sorted
func getConfigEnvVars() []string {
	vars := make([]string, 0, len(configKeys))
	for _, key := range configKeys {
		vars = append(vars, config.EnvPrefix+"_"+strings.ToUpper(key))
	}
	sort.Strings(vars)
	return vars
}

// validateConfigValue checks a value before it is written by config set
func validateConfigValue(key, value string) error {
	switch key {
	case "poll_interval":
		d, err := utils.ParseDuration(value)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive")
		}
	case "scale_resources":
		if value != "true" && value != "false" {
			return fmt.Errorf("scale_resources must be true or false")
		}
	case "scheduler_bin":
		if !config.ValidateBinary(value) {
			return fmt.Errorf("%s is not an executable", value)
		}
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage aslurm configuration",
	Long: `Manage aslurm configuration settings.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (ASLURM_*)
  3. Config file (first found of ~/.config/aslurm, ~/.aslurm, /etc/aslurm, .)
  4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(utils.StyleTitle("Config File:"))
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("  %s %s\n", utils.StylePath(used), utils.StyleSuccess("← in use"))
		} else {
			fmt.Printf("  %s (use 'aslurm config init' to create)\n", utils.StyleWarning("No config file found"))
		}
		fmt.Println()

		g := config.Global
		fmt.Println(utils.StyleTitle("Settings:"))
		fmt.Printf("  default_template: %s\n", orNone(g.DefaultTemplate))
		fmt.Printf("  runs_dir:         %s\n", g.RunsDir)
		fmt.Printf("  journal_path:     %s\n", g.JournalPath)
		fmt.Printf("  scheduler_bin:    %s\n", orNone(g.SchedulerBin))
		fmt.Printf("  poll_interval:    %s\n", g.PollInterval)
		fmt.Printf("  scale_resources:  %v\n", g.ScaleResources)
		fmt.Println()

		fmt.Println(utils.StyleTitle("Hostname Templates:"))
		if len(g.HostnameTemplates) == 0 {
			fmt.Printf("  %s\n", utils.StyleInfo("none"))
		}
		for _, m := range g.HostnameTemplates {
			fmt.Printf("  %s -> %s\n", m.Pattern, utils.StyleName(m.Template))
		}
		fmt.Println()

		fmt.Println(utils.StyleTitle("Global Fillers:"))
		if len(g.GlobalFillers) == 0 {
			fmt.Printf("  %s\n", utils.StyleInfo("none"))
		}
		keys := make([]string, 0, len(g.GlobalFillers))
		for k := range g.GlobalFillers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", utils.StyleName(k), g.GlobalFillers[k])
		}
		fmt.Println()

		fmt.Println(utils.StyleTitle("Template Directories:"))
		for i, dir := range config.TemplateSearchDirs() {
			status := ""
			if !utils.DirExists(dir) {
				status = " " + utils.StyleWarning("(not found)")
			}
			fmt.Printf("  %d. %s%s\n", i+1, dir, status)
		}
		fmt.Println()

		fmt.Println(utils.StyleTitle("Environment Variable Overrides:"))
		hasEnvOverrides := false
		for _, envVar := range append(getConfigEnvVars(), config.TemplatesEnvVar) {
			if val := os.Getenv(envVar); val != "" {
				fmt.Printf("  %s=%s\n", envVar, val)
				hasEnvOverrides = true
			}
		}
		if !hasEnvOverrides {
			fmt.Printf("  %s\n", utils.StyleInfo("none"))
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:               "get <key>",
	Short:             "Get a configuration value",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: configKeysCompletion,
	Run: func(cmd *cobra.Command, args []string) {
		value := viper.Get(args[0])
		if value == nil {
			ExitWithError("Unknown config key: %s", args[0])
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the user config file.

Examples:
  aslurm config set default_template horeka
  aslurm config set poll_interval 1m
  aslurm config set scale_resources true`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: configKeysCompletion,
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]

		for _, k := range listKeys {
			if key == k {
				ExitWithError("'%s' is a list or map setting. Use 'aslurm config edit'.", key)
			}
		}
		known := false
		for _, k := range configKeys {
			known = known || k == key
		}
		if !known {
			utils.PrintWarning("'%s' is not a standard config key", key)
		}
		if err := validateConfigValue(key, value); err != nil {
			ExitWithError("Invalid value for %s: %v", key, err)
		}

		viper.Set(key, value)
		if err := config.SaveConfig(); err != nil {
			ExitWithError("Failed to save config: %v", err)
		}

		configPath, _ := config.GetUserConfigPath()
		utils.PrintSuccess("Set %s = %s", utils.StyleInfo(key), utils.StyleInfo(value))
		utils.PrintNote("Config saved to: %s", configPath)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the user config file with defaults",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, err := config.GetUserConfigPath()
		if err != nil {
			ExitWithError("Failed to get config path: %v", err)
		}

		if utils.FileExists(configPath) {
			utils.PrintWarning("Config file already exists: %s", configPath)
			fmt.Print("Overwrite? [y/N]: ")
			var response string
			fmt.Scanln(&response)
			response = strings.ToLower(strings.TrimSpace(response))
			if response != "y" && response != "yes" {
				utils.PrintNote("Cancelled")
				return
			}
		}

		updated, err := config.ForceDetectAndSave()
		if err != nil {
			ExitWithError("Failed to save config: %v", err)
		}
		if err := utils.EnsureDir(config.GetUserTemplateDir()); err != nil {
			utils.PrintWarning("Failed to create template directory: %v", err)
		}

		if updated {
			utils.PrintSuccess("Config file created with auto-detected settings")
		} else {
			utils.PrintSuccess("Config file created")
		}
		fmt.Printf("  Location:  %s\n", utils.StylePath(configPath))
		fmt.Printf("  Templates: %s\n", utils.StylePath(config.GetUserTemplateDir()))
		if bin := viper.GetString("scheduler_bin"); bin != "" {
			fmt.Printf("  Scheduler: %s\n", bin)
		} else {
			fmt.Printf("  Scheduler: %s\n", utils.StyleWarning("sbatch not found (use --local)"))
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, err := config.GetUserConfigPath()
		if err != nil {
			ExitWithError("Failed to get config path: %v", err)
		}
		fmt.Println(configPath)
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit config file in default editor",
	Long:  "Open the configuration file in your default text editor ($EDITOR)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, err := config.GetUserConfigPath()
		if err != nil {
			ExitWithError("Failed to get config path: %v", err)
		}

		if !utils.FileExists(configPath) {
			utils.PrintNote("Config file doesn't exist, creating it first...")
			if err := config.SaveConfig(); err != nil {
				ExitWithError("Failed to create config: %v", err)
			}
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		editorCmd := exec.Command(editor, configPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			ExitWithError("Failed to open editor: %v", err)
		}
	},
}

func orNone(s string) string {
	if s == "" {
		return utils.StyleInfo("none")
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}
