package config

import (
	"os"
	"path/filepath"
	"strings"
)

// TemplatesEnvVar holds extra colon-separated template directories (like PATH).
const TemplatesEnvVar = "ASLURM_TEMPLATES_DIRS"

// GetExtraTemplateDirs returns template directories from the environment or config.
// The environment variable wins over the config file.
func GetExtraTemplateDirs() []string {
	if envDirs := os.Getenv(TemplatesEnvVar); envDirs != "" {
		var dirs []string
		for _, dir := range strings.Split(envDirs, ":") {
			dir = strings.TrimSpace(dir)
			if dir != "" {
				dirs = append(dirs, dir)
			}
		}
		if len(dirs) > 0 {
			return dirs
		}
	}
	return Global.TemplatesDirs
}

// GetUserTemplateDir returns $XDG_CONFIG_HOME/aslurm/templates or ~/.config/aslurm/templates.
func GetUserTemplateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "aslurm", "templates")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".aslurm", "templates")
	}
	return ""
}

// GetPortableTemplateDir returns the templates directory shipped next to the
// executable (<prefix>/templates for <prefix>/bin/aslurm), if it exists.
func GetPortableTemplateDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	exeDir := filepath.Dir(exe)
	if realExe, err := filepath.EvalSymlinks(exe); err == nil {
		exeDir = filepath.Dir(realExe)
	}

	candidates := []string{filepath.Join(exeDir, "templates")}
	if filepath.Base(exeDir) == "bin" {
		candidates = append([]string{filepath.Join(filepath.Dir(exeDir), "templates")}, candidates...)
	}
	for _, dir := range candidates {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			return dir
		}
	}
	return ""
}

// GetSystemTemplateDir returns the first existing system-wide templates directory.
func GetSystemTemplateDir() string {
	if dataDirs := os.Getenv("XDG_DATA_DIRS"); dataDirs != "" {
		for _, dir := range strings.Split(dataDirs, ":") {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, "aslurm", "templates")
			if stat, err := os.Stat(candidate); err == nil && stat.IsDir() {
				return candidate
			}
		}
	}

	for _, dir := range []string{"/etc/aslurm/templates", "/usr/local/share/aslurm/templates", "/usr/share/aslurm/templates"} {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			return dir
		}
	}
	return ""
}

// TemplateSearchDirs returns template directories in lookup order:
// extra → user → portable → system. First match wins for lookups.
func TemplateSearchDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, dir := range GetExtraTemplateDirs() {
		add(dir)
	}
	add(GetUserTemplateDir())
	add(GetPortableTemplateDir())
	add(GetSystemTemplateDir())
	return dirs
}
