package policy

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/victoralfred/gowritter/safepath"
	"gopkg.in/yaml.v3"
)

// Loader loads compiled policies from a YAML file.
type Loader struct {
	path     string
	safePath *safepath.SafePath
	opts     []Option
	mu       sync.RWMutex
	policy   *CompiledPolicy
	lastHash []byte
	lastLoad time.Time
}

// NewLoader creates a loader for the policy file relative to basePath.
func NewLoader(basePath, policyFile string, opts ...Option) (*Loader, error) {
	sp, err := safepath.New(basePath)
	if err != nil {
		return nil, fmt.Errorf("creating safe path: %w", err)
	}
	return &Loader{path: policyFile, safePath: sp, opts: opts}, nil
}

// Load reads, validates and compiles the policy file. An unchanged file
// returns the previously compiled policy.
func (l *Loader) Load(ctx context.Context) (*CompiledPolicy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.safePath.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	hash := sha256.Sum256(data)
	if l.policy != nil && string(hash[:]) == string(l.lastHash) {
		return l.policy, nil
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}
	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}

	compiled, err := Compile(fc.ToConfig(), l.opts...)
	if err != nil {
		return nil, fmt.Errorf("compiling policy: %w", err)
	}

	l.policy = compiled
	l.lastHash = hash[:]
	l.lastLoad = time.Now()
	return compiled, nil
}

// Get returns the current policy without reloading. Nil before first Load.
func (l *Loader) Get() *CompiledPolicy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}
