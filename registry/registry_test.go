package registry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/victoralfred/kioskd/validation"
)

func echoHandler(ctx context.Context, params Params) (map[string]any, error) {
	return map[string]any{"params": params}, nil
}

func newTestRegistry(t *testing.T, contracts ...Contract) *Registry {
	t.Helper()
	r := New()
	for _, c := range contracts {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register(%q): %v", c.Name, err)
		}
	}
	return r
}

func TestRegister(t *testing.T) {
	r := New()

	if err := r.Register(Contract{Name: "op", Handler: echoHandler}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(Contract{Name: "op", Handler: echoHandler}); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := r.Register(Contract{Handler: echoHandler}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(Contract{Name: "nohandler"}); err == nil {
		t.Error("nil handler accepted")
	}

	r.Freeze()
	if err := r.Register(Contract{Name: "late", Handler: echoHandler}); err == nil {
		t.Error("registration after Freeze accepted")
	}
}

func TestRegisterDefaultsMethod(t *testing.T) {
	r := newTestRegistry(t,
		Contract{Name: "write", Handler: echoHandler},
		Contract{Name: "read", Method: http.MethodGet, Handler: echoHandler},
	)

	c, _ := r.Lookup("write")
	if c.Method != http.MethodPost {
		t.Errorf("default method = %q, want POST", c.Method)
	}
	c, _ = r.Lookup("read")
	if c.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", c.Method)
	}
}

func TestContractsSorted(t *testing.T) {
	r := newTestRegistry(t,
		Contract{Name: "zulu", Handler: echoHandler},
		Contract{Name: "alpha", Handler: echoHandler},
		Contract{Name: "mike", Handler: echoHandler},
	)

	var names []string
	for _, c := range r.Contracts() {
		names = append(names, c.Name)
	}
	want := []string{"alpha", "mike", "zulu"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Contracts() order = %v, want %v", names, want)
		}
	}
}

func TestInvokeNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Invoke(context.Background(), "missing", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestInvokeContract(t *testing.T) {
	r := newTestRegistry(t, Contract{
		Name:     "op",
		Required: []string{"url"},
		Optional: []string{"mode"},
		Validators: map[string]validation.Func{
			"url": validation.NonEmptyString(),
		},
		Handler: echoHandler,
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{"valid", Params{"url": "http://x.test"}, ""},
		{"valid with optional", Params{"url": "http://x.test", "mode": "fast"}, ""},
		{"unknown key", Params{"url": "http://x.test", "bogus": 1}, "invalid key: bogus"},
		{"missing required", Params{"mode": "fast"}, "missing key: url"},
		{"validator failure", Params{"url": "  "}, "url is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(ctx, "op", tt.params)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Invoke: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
			if !IsValidationError(err) {
				t.Errorf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestInvokeStampsOp(t *testing.T) {
	var seen string
	r := newTestRegistry(t, Contract{
		Name: "op",
		Handler: func(ctx context.Context, params Params) (map[string]any, error) {
			seen = Op(params)
			return nil, nil
		},
	})

	if _, err := r.Invoke(context.Background(), "op", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if seen != "op" {
		t.Errorf("stamped op = %q, want %q", seen, "op")
	}
}

func TestInvokeTimeoutNormalization(t *testing.T) {
	var seen time.Duration
	r := newTestRegistry(t, Contract{
		Name: "op",
		Handler: func(ctx context.Context, params Params) (map[string]any, error) {
			seen = Timeout(params)
			return nil, nil
		},
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		params  Params
		want    time.Duration
		wantErr bool
	}{
		{"absent", Params{}, 0, false},
		{"positive", Params{"timeout": float64(30)}, 30 * time.Second, false},
		{"zero means none", Params{"timeout": float64(0)}, 0, false},
		{"negative means none", Params{"timeout": float64(-5)}, 0, false},
		{"fractional rejected", Params{"timeout": 1.5}, 0, true},
		{"string rejected", Params{"timeout": "30"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = -1
			_, err := r.Invoke(ctx, "op", tt.params)
			if tt.wantErr {
				if !IsValidationError(err) {
					t.Fatalf("error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if seen != tt.want {
				t.Errorf("timeout = %v, want %v", seen, tt.want)
			}
		})
	}
}

// A contract that declares timeout itself keeps the raw value; the implicit
// execution-timeout rule must not rewrite it.
func TestContractOwnedTimeout(t *testing.T) {
	var raw any
	r := newTestRegistry(t, Contract{
		Name:     "display_on",
		Optional: []string{"timeout"},
		Validators: map[string]validation.Func{
			"timeout": validation.NonNegativeInt(),
		},
		Handler: func(ctx context.Context, params Params) (map[string]any, error) {
			raw = params["timeout"]
			return nil, nil
		},
	})

	if _, err := r.Invoke(context.Background(), "display_on", Params{"timeout": float64(0)}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v, ok := raw.(float64); !ok || v != 0 {
		t.Errorf("timeout = %v (%T), want raw float64 0", raw, raw)
	}
}

func TestHandlerErrorPassthrough(t *testing.T) {
	boom := errors.New("boom")
	r := newTestRegistry(t, Contract{
		Name: "op",
		Handler: func(ctx context.Context, params Params) (map[string]any, error) {
			return nil, boom
		},
	})

	_, err := r.Invoke(context.Background(), "op", nil)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if IsValidationError(err) {
		t.Error("handler error misclassified as validation error")
	}
}
