package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// DebugMode controls whether PrintDebug output is visible.
var DebugMode = false

// QuietMode suppresses informational output. Errors and warnings are still shown.
var QuietMode = false

// prefix tags every console line.
const prefix = "[ASL]"

var (
	red      = color.New(color.FgRed).SprintFunc()
	redBold  = color.New(color.FgRed, color.Bold).SprintFunc()
	green    = color.New(color.FgGreen).SprintFunc()
	yellow   = color.New(color.FgYellow).SprintFunc()
	blueBold = color.New(color.FgBlue, color.Bold).SprintFunc()
	magenta  = color.New(color.FgMagenta).SprintFunc()
	cyan     = color.New(color.FgCyan).SprintFunc()
	gray     = color.New(color.FgWhite).SprintFunc() // FgWhite = Gray in ANSI
	bold     = color.New(color.Bold).SprintFunc()
)

// StyleError formats failures (red).
func StyleError(msg string) string { return red(msg) }

// StyleSuccess formats successes (green).
func StyleSuccess(msg string) string { return green(msg) }

// StyleWarning formats warnings (yellow).
func StyleWarning(msg string) string { return yellow(msg) }

// StyleInfo formats labels and properties (magenta).
func StyleInfo(msg string) string { return magenta(msg) }

// StyleCommand formats shell commands and flags.
func StyleCommand(cmd string) string { return gray(cmd) }

func StyleTitle(title string) string { return bold(cyan(title)) }

// StyleNumber formats counts and job IDs.
func StyleNumber(num interface{}) string {
	return magenta(fmt.Sprintf("%v", num))
}

// StylePath formats file paths (bold blue).
func StylePath(path string) string { return blueBold(path) }

// StyleName formats template names, keys and chain IDs (yellow).
func StyleName(name string) string { return yellow(name) }

// StyleState colors a chain or job state by outcome.
func StyleState(state string) string {
	switch state {
	case "DONE", "COMPLETED", "ok":
		return green(state)
	case "FAILED", "CANCELLED", "TIMEOUT", "OUT_OF_MEMORY", "NODE_FAIL", "error":
		return redBold(state)
	case "interrupted":
		return yellow(state)
	default:
		return magenta(state)
	}
}

// printTagged writes "[ASL]<tag> msg" to w.
func printTagged(w io.Writer, tag string, format string, a []interface{}) {
	fmt.Fprintf(w, "%s%s %s\n", prefix, tag, fmt.Sprintf(format, a...))
}

// PrintMessage prints an untagged info line.
// Output: [ASL] Submitted 4 job(s)
func PrintMessage(format string, a ...interface{}) {
	if QuietMode {
		return
	}
	printTagged(os.Stdout, "", format, a)
}

// PrintSuccess prints with a green [PASS] tag.
func PrintSuccess(format string, a ...interface{}) {
	if QuietMode {
		return
	}
	printTagged(os.Stdout, green("[PASS]"), format, a)
}

// PrintError prints with a red [ERR] tag to stderr.
func PrintError(format string, a ...interface{}) {
	printTagged(os.Stderr, red("[ERR] "), format, a)
}

// PrintWarning prints with a yellow [WARN] tag to stderr.
// Output: [ASL][WARN] Resume artifact unreadable.
func PrintWarning(format string, a ...interface{}) {
	printTagged(os.Stderr, yellow("[WARN]"), format, a)
}

// PrintHint prints with a cyan [HINT] tag.
func PrintHint(format string, a ...interface{}) {
	if QuietMode {
		return
	}
	printTagged(os.Stdout, cyan("[HINT]"), format, a)
}

// PrintNote prints with a magenta [NOTE] tag.
// Output: [ASL][NOTE] Waiting for 3 jobs.
func PrintNote(format string, a ...interface{}) {
	if QuietMode {
		return
	}
	printTagged(os.Stdout, magenta("[NOTE]"), format, a)
}

// PrintDebug prints to stderr only when DebugMode is set.
// Output: [ASL][DBG] Executing: sbatch gen0_job0.sh
func PrintDebug(format string, a ...interface{}) {
	if !DebugMode {
		return
	}
	printTagged(os.Stderr, gray("[DBG] "), format, a)
}
