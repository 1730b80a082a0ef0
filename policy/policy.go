// Package policy implements the command authorization engine: a compiled,
// immutable decision function over command strings.
//
// A policy is built once at startup and never mutates. Decisions are
// deterministic and side-effect free: the same command against the same
// policy always yields the same result. Ambiguity resolves to denial —
// an unresolvable binary, an empty program set, or a fragment set that
// parses to nothing never yields Allowed.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	internalexec "github.com/victoralfred/kioskd/internal/exec"
	"github.com/victoralfred/kioskd/internal/shellwords"
)

// Decision is the outcome of authorizing one command.
type Decision struct {
	// Allowed reports whether the command may be spawned.
	Allowed bool

	// Reason names the exact rule that denied the command. It is meant for
	// server-side logs; callers receive a generic message.
	Reason string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the violated rule.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Decider authorizes commands and screens free-text arguments.
type Decider interface {
	// Decide authorizes a full command line.
	Decide(command string) Decision

	// ScreenFreeText checks caller-supplied argument text for dangerous
	// tokens. Used by argument-only operations whose program is fixed.
	ScreenFreeText(text string) error
}

// Resolver resolves a program name to an absolute, symlink-resolved path.
// Injectable so tests don't depend on the host's PATH.
type Resolver func(name string) (string, error)

// Defaults applied when the corresponding Config fields are empty.
var (
	DefaultAllowedDirs  = []string{"/usr/bin", "/bin", "/usr/local/bin"}
	DefaultDeniedTokens = []string{"&", "|", "<", ">"}
)

// Config is the raw policy configuration. Compile it into a CompiledPolicy
// before use.
type Config struct {
	// AllowedDirs are the directories a resolved binary must live in.
	AllowedDirs []string

	// Whitelist is a regexp over program names. When set it is
	// authoritative: every program must fully match it.
	Whitelist string

	// Blacklist is a regexp over program names, consulted when no
	// whitelist is configured (or always, see WhitelistOverridesBlacklist).
	Blacklist string

	// WhitelistOverridesBlacklist controls whether a whitelist match makes
	// blacklist membership irrelevant. Nil means true.
	WhitelistOverridesBlacklist *bool

	// DeniedTokens are substrings rejected in free-text argument strings.
	DeniedTokens []string

	// AllowAll disables every check. Intended for debugging installs only.
	AllowAll bool
}

// CompiledPolicy is an immutable, ready-to-use policy.
type CompiledPolicy struct {
	allowedDirs   map[string]struct{}
	whitelist     *regexp.Regexp
	blacklist     *regexp.Regexp
	whitelistWins bool
	deniedTokens  []string
	allowAll      bool
	resolve       Resolver
}

// Option configures policy compilation.
type Option func(*CompiledPolicy)

// WithResolver overrides program name resolution.
func WithResolver(r Resolver) Option {
	return func(cp *CompiledPolicy) {
		cp.resolve = r
	}
}

// Compile builds a CompiledPolicy from configuration. Whitelist and blacklist
// patterns are anchored so a program name must match in full.
func Compile(config Config, opts ...Option) (*CompiledPolicy, error) {
	cp := &CompiledPolicy{
		allowedDirs:   make(map[string]struct{}),
		whitelistWins: true,
		deniedTokens:  config.DeniedTokens,
		allowAll:      config.AllowAll,
		resolve:       defaultResolver,
	}

	dirs := config.AllowedDirs
	if len(dirs) == 0 {
		dirs = DefaultAllowedDirs
	}
	for _, d := range dirs {
		cp.allowedDirs[filepath.Clean(d)] = struct{}{}
	}

	if len(cp.deniedTokens) == 0 {
		cp.deniedTokens = DefaultDeniedTokens
	}

	if config.WhitelistOverridesBlacklist != nil {
		cp.whitelistWins = *config.WhitelistOverridesBlacklist
	}

	var err error
	if config.Whitelist != "" {
		cp.whitelist, err = compileAnchored(config.Whitelist)
		if err != nil {
			return nil, fmt.Errorf("compiling whitelist: %w", err)
		}
	}
	if config.Blacklist != "" {
		cp.blacklist, err = compileAnchored(config.Blacklist)
		if err != nil {
			return nil, fmt.Errorf("compiling blacklist: %w", err)
		}
	}

	for _, opt := range opts {
		opt(cp)
	}

	return cp, nil
}

// compileAnchored wraps a pattern so it must match the whole program name.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

// defaultResolver resolves through the executable search path and follows
// symlinks to the real binary.
func defaultResolver(name string) (string, error) {
	return internalexec.Resolve(name)
}

// Decide implements Decider. The check is program-name based: the command is
// split at shell control operators, each fragment is tokenized with shell
// word rules, and the first word of every fragment is authorized. A fragment
// with malformed quoting is skipped rather than aborting the decision; if
// nothing parses, the command is denied.
func (cp *CompiledPolicy) Decide(command string) Decision {
	if cp.allowAll {
		return Allow()
	}

	programs := cp.programNames(command)
	if len(programs) == 0 {
		return Deny("no programs found")
	}

	for _, prog := range programs {
		if d := cp.decideProgram(prog); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// programNames extracts the distinct set of program names, sorted for
// deterministic denial ordering.
func (cp *CompiledPolicy) programNames(command string) []string {
	seen := make(map[string]struct{})
	for _, frag := range shellwords.Fragments(command) {
		words, err := shellwords.Split(frag)
		if err != nil || len(words) == 0 {
			continue
		}
		seen[words[0]] = struct{}{}
	}

	programs := make([]string, 0, len(seen))
	for p := range seen {
		programs = append(programs, p)
	}
	sort.Strings(programs)
	return programs
}

func (cp *CompiledPolicy) decideProgram(prog string) Decision {
	resolved, err := cp.resolve(prog)
	if err != nil {
		return Deny(fmt.Sprintf("%s: not found", prog))
	}
	if _, ok := cp.allowedDirs[filepath.Dir(resolved)]; !ok {
		return Deny(fmt.Sprintf("%s: path not allowed (%s)", prog, resolved))
	}

	if cp.whitelist != nil {
		if !cp.whitelist.MatchString(prog) {
			return Deny(fmt.Sprintf("%s: not whitelisted", prog))
		}
		if !cp.whitelistWins && cp.blacklist != nil && cp.blacklist.MatchString(prog) {
			return Deny(fmt.Sprintf("%s: blacklisted", prog))
		}
		return Allow()
	}

	if cp.blacklist != nil && cp.blacklist.MatchString(prog) {
		return Deny(fmt.Sprintf("%s: blacklisted", prog))
	}
	return Allow()
}

// ScreenFreeText implements Decider.
func (cp *CompiledPolicy) ScreenFreeText(text string) error {
	if cp.allowAll {
		return nil
	}
	for _, tok := range cp.deniedTokens {
		if strings.Contains(text, tok) {
			return fmt.Errorf("contains forbidden token %q", tok)
		}
	}
	return nil
}

// Permissive returns a policy that allows everything.
// WARNING: Only use for testing or explicitly unlocked installs.
func Permissive() Decider {
	cp, _ := Compile(Config{AllowAll: true})
	return cp
}
