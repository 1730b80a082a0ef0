package shellwords

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "ls -la /tmp", []string{"ls", "-la", "/tmp"}},
		{"extra whitespace", "  ls   -la  ", []string{"ls", "-la"}},
		{"single quotes", "echo 'hello world'", []string{"echo", "hello world"}},
		{"double quotes", `echo "hello world"`, []string{"echo", "hello world"}},
		{"empty quoted word", "echo ''", []string{"echo", ""}},
		{"backslash escape", `echo hello\ world`, []string{"echo", "hello world"}},
		{"escape in double quotes", `echo "a\"b"`, []string{"echo", `a"b`}},
		{"literal backslash in single quotes", `echo 'a\b'`, []string{"echo", `a\b`}},
		{"adjacent quoted parts", `echo a'b c'd`, []string{"echo", "ab cd"}},
		{"tabs and newlines", "a\tb\nc", []string{"a", "b", "c"}},
		{"empty", "", nil},
		{"only whitespace", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.input)
			if err != nil {
				t.Fatalf("Split(%q) returned error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitUnterminated(t *testing.T) {
	for _, input := range []string{"echo 'abc", `echo "abc`, `echo abc\`} {
		t.Run(input, func(t *testing.T) {
			if _, err := Split(input); !errors.Is(err, ErrUnterminatedQuote) {
				t.Errorf("Split(%q) error = %v, want ErrUnterminatedQuote", input, err)
			}
		})
	}
}

func TestFragments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single command", "ls -la", []string{"ls -la"}},
		{"semicolon", "ls; pwd", []string{"ls", "pwd"}},
		{"pipe", "cat /etc/passwd | grep root", []string{"cat /etc/passwd", "grep root"}},
		{"and", "make && make install", []string{"make", "make install"}},
		{"or", "test -f x || touch x", []string{"test -f x", "touch x"}},
		{"background", "sleep 10 &", []string{"sleep 10"}},
		{"command substitution", "echo $(whoami)", []string{"echo", "whoami)"}},
		{"backtick substitution", "echo `whoami`", []string{"echo", "whoami"}},
		{"subshell", "(cd /tmp)", []string{"cd /tmp)"}},
		{"operator inside single quotes", "echo 'a;b'", []string{"echo 'a;b'"}},
		{"operator inside double quotes", `echo "a|b"`, []string{`echo "a|b"`}},
		{"empty pieces dropped", ";;ls;;", []string{"ls"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fragments(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Fragments(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNeedsShell(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ls -la /tmp", false},
		{"xset dpms force on", false},
		{"xset -q | grep -i 'Monitor is'", true},
		{"echo $HOME", true},
		{"ls *.txt", true},
		{"cat < input", true},
		{"ls > out", true},
		{"a && b", true},
		{"sleep 10 &", true},
		{"echo 'quoted'", true},
		{"ls ~/Documents", true},
		{"grep pattern file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NeedsShell(tt.input); got != tt.want {
				t.Errorf("NeedsShell(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
