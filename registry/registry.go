// Package registry binds named operations to parameter contracts and
// handlers. The table is populated during initialization through Register and
// is immutable once frozen; Invoke applies the same contract enforcement to
// every operation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/victoralfred/kioskd/validation"
)

// Params is the decoded JSON parameter set of one invocation.
type Params map[string]any

// OpKey is the params key under which Invoke stamps the resolved operation
// name for downstream logging and tracing.
const OpKey = "op"

// timeoutKey is the implicit per-invocation execution timeout parameter.
const timeoutKey = "timeout"

// Handler executes one operation against validated parameters. The returned
// map is merged into the success envelope.
type Handler func(ctx context.Context, params Params) (map[string]any, error)

// Contract describes one registered operation.
type Contract struct {
	// Name is the operation name; the HTTP route is /<name>.
	Name string

	// Method is the HTTP method (GET for read-only state queries, POST
	// otherwise). Empty defaults to POST.
	Method string

	// Protected marks operations capable of arbitrary or high-impact
	// command execution; the dispatcher gates them.
	Protected bool

	// Required and Optional are the accepted parameter names. Any other
	// key (except the implicit timeout) is a contract violation.
	Required []string
	Optional []string

	// Validators are per-parameter checks, run only for supplied keys.
	Validators map[string]validation.Func

	// Handler is the operation implementation.
	Handler Handler
}

// ownsTimeout reports whether the contract declares "timeout" itself, in
// which case the implicit execution-timeout rule is skipped and the
// contract's validator governs the key.
func (c *Contract) ownsTimeout() bool {
	for _, k := range c.Required {
		if k == timeoutKey {
			return true
		}
	}
	for _, k := range c.Optional {
		if k == timeoutKey {
			return true
		}
	}
	return false
}

// ErrNotFound indicates an unregistered operation.
var ErrNotFound = errors.New("operation not found")

// ValidationError is a parameter contract violation, surfaced verbatim to
// the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a contract violation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Registry is the operation table. Populate it during startup, then Freeze.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]*Contract
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ops: make(map[string]*Contract)}
}

// Register adds an operation to the table.
func (r *Registry) Register(c Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", c.Name)
	}
	if c.Name == "" {
		return errors.New("operation name is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("operation %q has no handler", c.Name)
	}
	if _, exists := r.ops[c.Name]; exists {
		return fmt.Errorf("operation %q already registered", c.Name)
	}
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	r.ops[c.Name] = &c
	return nil
}

// Freeze makes the table read-only. Call once registration is complete.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the contract for an operation name.
func (r *Registry) Lookup(name string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ops[name]
	return c, ok
}

// Contracts returns all registered contracts, sorted by name.
func (r *Registry) Contracts() []*Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Contract, 0, len(r.ops))
	for _, c := range r.ops {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named operation through the uniform contract wrapper:
// unknown-key rejection, required-key check, per-key validators, implicit
// timeout normalization, operation-name stamping, then the handler.
func (r *Registry) Invoke(ctx context.Context, name string, params Params) (map[string]any, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if params == nil {
		params = Params{}
	}

	allowed := make(map[string]struct{}, len(c.Required)+len(c.Optional)+1)
	for _, k := range c.Required {
		allowed[k] = struct{}{}
	}
	for _, k := range c.Optional {
		allowed[k] = struct{}{}
	}
	allowed[timeoutKey] = struct{}{}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := allowed[k]; !ok {
			return nil, validationErrorf("invalid key: %s", k)
		}
	}
	for _, k := range c.Required {
		if _, ok := params[k]; !ok {
			return nil, validationErrorf("missing key: %s", k)
		}
	}
	for _, k := range keys {
		v, ok := c.Validators[k]
		if !ok {
			continue
		}
		if err := v(params[k]); err != nil {
			return nil, validationErrorf("%s is invalid: %v", k, err)
		}
	}

	if !c.ownsTimeout() {
		if err := normalizeTimeout(params); err != nil {
			return nil, err
		}
	}

	params[OpKey] = name
	return c.Handler(ctx, params)
}

// normalizeTimeout resolves the implicit timeout parameter: absent or <= 0
// means no timeout; anything else must be a positive integer second count.
func normalizeTimeout(params Params) error {
	raw, ok := params[timeoutKey]
	if !ok {
		return nil
	}
	n, isInt := validation.AsInt(raw)
	if !isInt {
		return validationErrorf("timeout must be a positive integer")
	}
	if n <= 0 {
		delete(params, timeoutKey)
		return nil
	}
	params[timeoutKey] = time.Duration(n) * time.Second
	return nil
}

// Timeout returns the normalized execution timeout stamped by Invoke, or
// zero when none applies.
func Timeout(params Params) time.Duration {
	if d, ok := params[timeoutKey].(time.Duration); ok {
		return d
	}
	return 0
}

// Op returns the operation name stamped by Invoke.
func Op(params Params) string {
	s, _ := params[OpKey].(string)
	return s
}
