package sweep

import (
	"errors"
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "no markers",
			input: "python train.py --epochs 10",
			want:  []string{"python train.py --epochs 10"},
		},
		{
			name:  "zipped lists",
			input: "lr=<[1e-3,1e-4]> bs=<[32,64]>",
			want:  []string{"lr=1e-3 bs=32", "lr=1e-4 bs=64"},
		},
		{
			name:  "product last varies fastest",
			input: "a=<{1,2}> b=<{x,y}>",
			want:  []string{"a=1 b=x", "a=1 b=y", "a=2 b=x", "a=2 b=y"},
		},
		{
			name:  "values are trimmed",
			input: "x=<[ 1 , 2 ]>",
			want:  []string{"x=1", "x=2"},
		},
		{
			name:  "single value marker",
			input: "seed=<{7}>",
			want:  []string{"seed=7"},
		},
		{
			name:  "mixed list outer product inner",
			input: "m=<[a,b]> s=<{1,2}>",
			want:  []string{"m=a s=1", "m=a s=2", "m=b s=1", "m=b s=2"},
		},
		{
			name:  "unterminated marker is literal",
			input: "echo <[1,2",
			want:  []string{"echo <[1,2"},
		},
		{
			name:  "adjacent markers",
			input: "<{a,b}><{1,2}>",
			want:  []string{"a1", "a2", "b1", "b2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandCount(t *testing.T) {
	input := "python run.py --a <[1,2,3,4]> --b <[w,x,y,z]> --c <{p,q,r}>"
	tmpl, err := Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Count() != 12 {
		t.Errorf("Count() = %d, want 12", tmpl.Count())
	}
	got := tmpl.Expand()
	if len(got) != 12 {
		t.Fatalf("len(Expand()) = %d, want 12", len(got))
	}
	if got[0] != "python run.py --a 1 --b w --c p" {
		t.Errorf("first = %q", got[0])
	}
	if got[11] != "python run.py --a 4 --b z --c r" {
		t.Errorf("last = %q", got[11])
	}
}

func TestExpandErrors(t *testing.T) {
	_, err := Expand("a=<[1,2]> b=<[1,2,3]>")
	if !IsSweepLengthMismatchError(err) {
		t.Fatalf("expected SweepLengthMismatchError, got %v", err)
	}
	var mismatch *SweepLengthMismatchError
	if errors.As(err, &mismatch) && !reflect.DeepEqual(mismatch.Lengths, []int{2, 3}) {
		t.Errorf("Lengths = %v, want [2 3]", mismatch.Lengths)
	}

	for _, input := range []string{"a=<[]>", "a=<{ }>", "a=<[ , ]>", "a=<{1,,2}>", "a=<[x,]>"} {
		if _, err := Expand(input); !IsEmptySweepError(err) {
			t.Errorf("Expand(%q): expected EmptySweepError, got %v", input, err)
		}
	}
}

func TestExpandDeterministic(t *testing.T) {
	input := "x=<{1,2,3}> y=<[a,b]> z=<{u,v}>"
	first, err := Expand(input)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, _ := Expand(input)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("expansion differs between runs: %q vs %q", first, again)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []Spec
		wantErr error
	}{
		{
			name: "two commands",
			args: []string{"cmd", "python", "a.py", "cmd", "python", "b.py", "--x", "1"},
			want: []Spec{{"python a.py", 1}, {"python b.py --x 1", 1}},
		},
		{
			name: "repeat shorthand",
			args: []string{"cmdx4", "python", "train.py"},
			want: []Spec{{"python train.py", 4}},
		},
		{
			name: "words with spaces are quoted",
			args: []string{"cmd", "echo", "hello world"},
			want: []Spec{{"echo 'hello world'", 1}},
		},
		{
			name: "cmd-like words inside a command are kept",
			args: []string{"cmd", "python", "cmdline.py"},
			want: []Spec{{"python cmdline.py", 1}},
		},
		{name: "no cmd token", args: []string{"python", "a.py"}, wantErr: ErrNoCommands},
		{name: "empty", args: nil, wantErr: ErrNoCommands},
		{name: "empty command", args: []string{"cmd", "cmd", "ls"}, wantErr: ErrEmptyCommand},
		{name: "zero repeat", args: []string{"cmdx0", "ls"}, wantErr: ErrInvalidRepeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitArgs(tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SplitArgs(%q) error = %v, want %v", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitArgs(%q) unexpected error: %v", tt.args, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestExpandAllRepeats(t *testing.T) {
	specs := []Spec{
		{Template: "run <{a,b}>", Repeat: 2},
		{Template: "solo", Repeat: 1},
	}
	got, err := ExpandAll(specs)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run a", "run b", "run a", "run b", "solo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandAll = %q, want %q", got, want)
	}
}

func TestJoinWords(t *testing.T) {
	got := JoinWords([]string{"python", "train.py", "--name", "my run", "it's"})
	want := `python train.py --name 'my run' it's`
	if got != want {
		t.Errorf("JoinWords = %q, want %q", got, want)
	}
}
