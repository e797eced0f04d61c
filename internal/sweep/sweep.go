// Package sweep expands command templates containing sweep markers into
// concrete command lines.
//
// Two marker kinds are recognized:
//
//	<[a,b,c]>  list mode: all list markers of a template advance together (zip)
//	<{a,b,c}>  product mode: combined by Cartesian product
//
// A template with L-long list markers and product markers of lengths p1..pk
// expands to L*p1*...*pk commands. The zip index is the outer loop and the
// last product marker varies fastest.
package sweep

import (
	"strings"
)

// Mode is the combination rule of a marker.
type Mode int

const (
	ModeList Mode = iota
	ModeProduct
)

func (m Mode) String() string {
	if m == ModeProduct {
		return "product"
	}
	return "list"
}

var delimiters = map[Mode][2]string{
	ModeList:    {"<[", "]>"},
	ModeProduct: {"<{", "}>"},
}

// Marker is one sweep marker in a template.
type Marker struct {
	Mode   Mode
	Values []string
	Offset int // byte offset of the opening delimiter
}

// segment is either literal text or a reference to a marker.
type segment struct {
	literal string
	marker  int // index into Template.Markers, -1 for literal
}

// Template is a parsed command template.
type Template struct {
	Raw     string
	Markers []Marker
	parts   []segment
}

// Parse splits a command template into literal text and markers. An opening
// delimiter without a matching close is kept as literal text.
func Parse(raw string) (*Template, error) {
	t := &Template{Raw: raw}
	var lit strings.Builder
	i := 0
	for i < len(raw) {
		mode, ok := openingAt(raw, i)
		if !ok {
			lit.WriteByte(raw[i])
			i++
			continue
		}
		delim := delimiters[mode]
		end := strings.Index(raw[i+len(delim[0]):], delim[1])
		if end < 0 {
			lit.WriteString(raw[i:])
			break
		}
		body := raw[i+len(delim[0]) : i+len(delim[0])+end]
		values := splitValues(body)
		for _, v := range values {
			if v == "" {
				return nil, NewEmptySweepError(raw, i)
			}
		}

		if lit.Len() > 0 {
			t.parts = append(t.parts, segment{literal: lit.String(), marker: -1})
			lit.Reset()
		}
		t.parts = append(t.parts, segment{marker: len(t.Markers)})
		t.Markers = append(t.Markers, Marker{Mode: mode, Values: values, Offset: i})
		i += len(delim[0]) + end + len(delim[1])
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, segment{literal: lit.String(), marker: -1})
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func openingAt(s string, i int) (Mode, bool) {
	if strings.HasPrefix(s[i:], delimiters[ModeList][0]) {
		return ModeList, true
	}
	if strings.HasPrefix(s[i:], delimiters[ModeProduct][0]) {
		return ModeProduct, true
	}
	return 0, false
}

func splitValues(body string) []string {
	raw := strings.Split(body, ",")
	values := make([]string, len(raw))
	for i, v := range raw {
		values[i] = strings.TrimSpace(v)
	}
	return values
}

func (t *Template) validate() error {
	var lengths []int
	mismatch := false
	for _, m := range t.Markers {
		if m.Mode != ModeList {
			continue
		}
		if len(lengths) > 0 && len(m.Values) != lengths[0] {
			mismatch = true
		}
		lengths = append(lengths, len(m.Values))
	}
	if mismatch {
		return NewSweepLengthMismatchError(t.Raw, lengths)
	}
	return nil
}

// Count returns the number of commands Expand will produce.
func (t *Template) Count() int {
	zip, product := 1, 1
	for _, m := range t.Markers {
		if m.Mode == ModeList {
			zip = len(m.Values)
		} else {
			product *= len(m.Values)
		}
	}
	return zip * product
}

// Expand returns the concrete commands in sweep order.
func (t *Template) Expand() []string {
	var listIdx, prodIdx []int
	zip := 1
	for i, m := range t.Markers {
		if m.Mode == ModeList {
			listIdx = append(listIdx, i)
			zip = len(m.Values)
		} else {
			prodIdx = append(prodIdx, i)
		}
	}

	out := make([]string, 0, t.Count())
	choice := make([]int, len(t.Markers))
	for z := 0; z < zip; z++ {
		for _, i := range listIdx {
			choice[i] = z
		}
		for _, i := range prodIdx {
			choice[i] = 0
		}
		for {
			out = append(out, t.render(choice))
			if !advance(t.Markers, prodIdx, choice) {
				break
			}
		}
	}
	return out
}

// advance steps the product odometer, last marker fastest. It reports false
// once every combination has been visited.
func advance(markers []Marker, prodIdx []int, choice []int) bool {
	for k := len(prodIdx) - 1; k >= 0; k-- {
		i := prodIdx[k]
		choice[i]++
		if choice[i] < len(markers[i].Values) {
			return true
		}
		choice[i] = 0
	}
	return false
}

func (t *Template) render(choice []int) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.marker < 0 {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(t.Markers[p.marker].Values[choice[p.marker]])
	}
	return b.String()
}

// Expand parses raw and returns its concrete commands.
func Expand(raw string) ([]string, error) {
	t, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return t.Expand(), nil
}
