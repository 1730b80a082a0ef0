// Package shellwords implements the minimal subset of POSIX shell lexing the
// gateway needs: splitting a command line into words, fragmenting a line at
// control operators, and deciding whether a line requires a shell interpreter
// at all.
//
// This is deliberately not a full shell parser. It understands single quotes,
// double quotes, backslash escapes, and the control operators that start a new
// simple command; everything else is treated as literal text.
package shellwords

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote reports a command line (or fragment) whose quoting
// never closes. Callers decide whether that aborts the operation or just
// skips the fragment.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Split tokenizes s into shell words, honoring single quotes, double quotes,
// and backslash escapes outside single quotes. It returns
// ErrUnterminatedQuote if a quote is left open.
func Split(s string) ([]string, error) {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		single  bool
		double  bool
		escaped bool
	)

	flush := func() {
		if inWord {
			words = append(words, word.String())
			word.Reset()
			inWord = false
		}
	}

	for _, r := range s {
		switch {
		case escaped:
			word.WriteRune(r)
			inWord = true
			escaped = false
		case single:
			if r == '\'' {
				single = false
			} else {
				word.WriteRune(r)
			}
		case double:
			switch r {
			case '"':
				double = false
			case '\\':
				escaped = true
			default:
				word.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case r == '\'':
			single = true
			inWord = true
		case r == '"':
			double = true
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if single || double || escaped {
		return nil, ErrUnterminatedQuote
	}
	flush()
	return words, nil
}

// Fragments splits a command line at shell control operators that begin a new
// simple command: sequencing (';', '&&', '||'), pipes ('|'), backgrounding
// ('&'), and command/subshell substitution openers ('$(', '`', '('). Operators
// inside quotes do not split. The pieces are returned trimmed; empty pieces
// are dropped.
//
// Quoting state is tracked only well enough to avoid splitting inside quotes;
// an unterminated quote surfaces later when the fragment itself is tokenized.
func Fragments(s string) []string {
	var (
		frags   []string
		cur     strings.Builder
		single  bool
		double  bool
		escaped bool
	)

	cut := func() {
		if f := strings.TrimSpace(cur.String()); f != "" {
			frags = append(frags, f)
		}
		cur.Reset()
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case single:
			cur.WriteRune(r)
			if r == '\'' {
				single = false
			}
		case double:
			cur.WriteRune(r)
			switch r {
			case '"':
				double = false
			case '\\':
				escaped = true
			}
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '\'':
			cur.WriteRune(r)
			single = true
		case r == '"':
			cur.WriteRune(r)
			double = true
		case r == ';' || r == '|' || r == '&' || r == '`' || r == '(':
			// '&&' and '||' collapse into the same cut as their first rune;
			// '$(' is handled by cutting at '(' with the '$' dropped below.
			cut()
		case r == '$' && i+1 < len(runes) && runes[i+1] == '(':
			cut()
			i++ // consume '('
		default:
			cur.WriteRune(r)
		}
	}
	cut()
	return frags
}

// NeedsShell reports whether line relies on shell semantics and therefore must
// run through an interpreter rather than a direct exec: quoting, variable or
// command expansion, redirection, globbing, control operators, or tilde
// expansion.
func NeedsShell(line string) bool {
	return strings.ContainsAny(line, "'\"\\$`|&;<>()*?[]{}~\n")
}
