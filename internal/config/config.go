package config

import (
	"os"
	"path/filepath"
	"time"
)

const VERSION = "0.4.0"

// Config holds global application settings
type Config struct {
	Debug      bool
	Local      bool
	Version    string
	ProgramDir string

	TemplatesDirs     []string
	DefaultTemplate   string
	HostnameTemplates []HostnameMapping
	GlobalFillers     map[string]string
	ScaleResources    bool

	RunsDir      string
	JournalPath  string
	SchedulerBin string
	PollInterval time.Duration
}

// HostnameMapping selects a template when the submit host matches Pattern.
// Patterns are case-sensitive regular expressions.
type HostnameMapping struct {
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
	Template string `mapstructure:"template" yaml:"template"`
}

// Global holds the singleton configuration instance
var Global Config

// DefaultPollInterval is how often the chain controller asks the scheduler about its jobs.
const DefaultPollInterval = 30 * time.Second

func LoadDefaults(executablePath string) {
	programDir := filepath.Dir(executablePath)
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	runsDir := filepath.Join(cwd, ".aslurm")

	Global = Config{
		Debug:      false,
		Local:      false,
		Version:    VERSION,
		ProgramDir: programDir,

		GlobalFillers: map[string]string{},

		RunsDir:      runsDir,
		JournalPath:  filepath.Join(runsDir, "journal.db"),
		SchedulerBin: "",
		PollInterval: DefaultPollInterval,
	}
}
