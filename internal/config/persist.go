package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/spf13/viper"
)

// ConfigFilename is the name of the config file
const ConfigFilename = "config"

// ConfigType is the type of config file (yaml, json, toml)
const ConfigType = "yaml"

// EnvPrefix is the prefix for environment overrides (ASLURM_RUNS_DIR, ...).
const EnvPrefix = "ASLURM"

// InitViper initializes Viper with proper search paths and defaults
// Priority (highest to lowest):
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (ASLURM_*)
// 3. User config file (~/.config/aslurm/config.yaml)
// 4. System config file (/etc/aslurm/config.yaml)
// 5. Defaults
func InitViper() error {
	viper.SetConfigName(ConfigFilename)
	viper.SetConfigType(ConfigType)

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(userConfigDir, "aslurm"))
	}

	// Home directory fallback
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".aslurm"))
	}

	viper.AddConfigPath("/etc/aslurm")

	// Current directory (per-project config)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	setDefaults()

	// Read config file (non-fatal if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// setDefaults sets default values for all config keys
func setDefaults() {
	viper.SetDefault("templates_dirs", []string{})
	viper.SetDefault("default_template", "")
	viper.SetDefault("hostname_templates", []HostnameMapping{})
	viper.SetDefault("global_fillers", map[string]string{})
	viper.SetDefault("scale_resources", false)
	viper.SetDefault("runs_dir", "")
	viper.SetDefault("journal_path", "")
	viper.SetDefault("scheduler_bin", "")
	viper.SetDefault("poll_interval", DefaultPollInterval.String())
}

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".aslurm", ConfigFilename+"."+ConfigType), nil
	}

	return filepath.Join(userConfigDir, "aslurm", ConfigFilename+"."+ConfigType), nil
}

// SaveConfig saves current Viper config to user config file
func SaveConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := utils.EnsureDir(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ValidateBinary checks if a binary exists and is executable
func ValidateBinary(binPath string) bool {
	if binPath == "" {
		return false
	}

	if filepath.IsAbs(binPath) {
		info, err := os.Stat(binPath)
		if err != nil {
			return false
		}
		return info.Mode()&0111 != 0
	}

	_, err := exec.LookPath(binPath)
	return err == nil
}

// DetectSchedulerBin returns the full path of sbatch if it is on PATH.
func DetectSchedulerBin() string {
	if path, err := exec.LookPath("sbatch"); err == nil {
		return path
	}
	return ""
}

// ForceDetectAndSave re-detects the scheduler binary from the current PATH and
// writes the user config file. Used by `config init`.
func ForceDetectAndSave() (bool, error) {
	updated := false

	if detected := DetectSchedulerBin(); detected != "" {
		if viper.GetString("scheduler_bin") != detected {
			viper.Set("scheduler_bin", detected)
			updated = true
		}
	}

	// Always save (even if nothing changed, to create the file)
	if err := SaveConfig(); err != nil {
		return false, err
	}

	return updated, nil
}

// LoadFromViper loads config from Viper into Global struct
func LoadFromViper() {
	if dirs := viper.GetStringSlice("templates_dirs"); len(dirs) > 0 {
		Global.TemplatesDirs = nil
		for _, dir := range dirs {
			Global.TemplatesDirs = append(Global.TemplatesDirs, utils.ExpandHome(dir))
		}
	}

	if name := viper.GetString("default_template"); name != "" {
		Global.DefaultTemplate = name
	}

	var mappings []HostnameMapping
	if err := viper.UnmarshalKey("hostname_templates", &mappings); err != nil {
		utils.PrintWarning("Ignoring malformed hostname_templates: %v", err)
	} else if len(mappings) > 0 {
		Global.HostnameTemplates = mappings
	}

	// viper lowercases these keys; the renderer matches global fillers case-insensitively.
	if fillers := viper.GetStringMapString("global_fillers"); len(fillers) > 0 {
		Global.GlobalFillers = fillers
	}

	Global.ScaleResources = viper.GetBool("scale_resources")

	if runsDir := viper.GetString("runs_dir"); runsDir != "" {
		Global.RunsDir = utils.ExpandHome(runsDir)
		Global.JournalPath = filepath.Join(Global.RunsDir, "journal.db")
	}

	if journal := viper.GetString("journal_path"); journal != "" {
		Global.JournalPath = utils.ExpandHome(journal)
	}

	if bin := viper.GetString("scheduler_bin"); bin != "" {
		Global.SchedulerBin = bin
	}

	if interval := viper.GetString("poll_interval"); interval != "" {
		// Parse time duration from string (e.g., "30s", "1m", or "00:01:00")
		if dur, err := utils.ParseDuration(interval); err == nil && dur > 0 {
			Global.PollInterval = dur
		} else {
			utils.PrintWarning("Ignoring invalid poll_interval %q", interval)
		}
	}
}
