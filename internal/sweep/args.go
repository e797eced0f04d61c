package sweep

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// cmdTokenRe matches the words that start a new command: "cmd" or "cmdxN".
var cmdTokenRe = regexp.MustCompile(`^cmd(?:x(\d+))?$`)

// Spec is one command template from the command line together with its
// repeat count from the cmdxN shorthand.
type Spec struct {
	Template string
	Repeat   int
}

// IsCommandToken reports whether arg starts a new command.
func IsCommandToken(arg string) bool {
	return cmdTokenRe.MatchString(strings.TrimSpace(arg))
}

// SplitArgs groups argv into command specs. Every "cmd" or "cmdxN" word
// starts a new command; the words after it, up to the next such word, form
// the command template.
func SplitArgs(args []string) ([]Spec, error) {
	if len(args) == 0 || !IsCommandToken(args[0]) {
		return nil, ErrNoCommands
	}

	var specs []Spec
	var words []string
	repeat := 0
	flush := func() error {
		if len(words) == 0 {
			return fmt.Errorf("%w after %s", ErrEmptyCommand, repeatToken(repeat))
		}
		specs = append(specs, Spec{Template: strings.Join(words, " "), Repeat: repeat})
		words = nil
		return nil
	}

	for i, arg := range args {
		m := cmdTokenRe.FindStringSubmatch(strings.TrimSpace(arg))
		if m == nil {
			words = append(words, quoteWord(arg))
			continue
		}
		if i > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		repeat = 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w in %q", ErrInvalidRepeat, arg)
			}
			repeat = n
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return specs, nil
}

func repeatToken(n int) string {
	if n <= 1 {
		return "cmd"
	}
	return fmt.Sprintf("cmdx%d", n)
}

// quoteWord single-quotes words that contain whitespace so the shell sees
// them as one argument again.
func quoteWord(w string) string {
	if w == "" {
		return "''"
	}
	if !strings.ContainsAny(w, " \t\n") {
		return w
	}
	return "'" + strings.ReplaceAll(w, "'", `'\''`) + "'"
}

// ExpandAll expands every spec in order. A spec with Repeat n contributes its
// expansion n times in a row.
func ExpandAll(specs []Spec) ([]string, error) {
	var out []string
	for _, s := range specs {
		cmds, err := Expand(s.Template)
		if err != nil {
			return nil, err
		}
		repeat := s.Repeat
		if repeat < 1 {
			repeat = 1
		}
		for r := 0; r < repeat; r++ {
			out = append(out, cmds...)
		}
	}
	return out, nil
}

// JoinWords joins argv words into one command line, quoting words that
// contain whitespace.
func JoinWords(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = quoteWord(w)
	}
	return strings.Join(quoted, " ")
}
