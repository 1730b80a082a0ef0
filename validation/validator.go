// Package validation provides parameter validators for endpoint contracts.
// Validators judge a single decoded JSON value; the registry runs them and
// surfaces the first failure verbatim to the caller as a 400.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Func validates one parameter value.
type Func func(value any) error

// ErrInvalid is the generic validation failure.
var ErrInvalid = errors.New("invalid value")

// AsInt coerces a decoded JSON value into an int. JSON numbers arrive as
// float64; only integral values convert.
func AsInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// NonEmptyString requires a string with non-whitespace content.
func NonEmptyString() Func {
	return func(value any) error {
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: must be a non-empty string", ErrInvalid)
		}
		return nil
	}
}

// NonNegativeInt requires an integer >= 0.
func NonNegativeInt() Func {
	return func(value any) error {
		n, ok := AsInt(value)
		if !ok || n < 0 {
			return fmt.Errorf("%w: must be a non-negative integer", ErrInvalid)
		}
		return nil
	}
}

// PositiveInt requires an integer > 0.
func PositiveInt() Func {
	return func(value any) error {
		n, ok := AsInt(value)
		if !ok || n <= 0 {
			return fmt.Errorf("%w: must be a positive integer", ErrInvalid)
		}
		return nil
	}
}

// StringList requires a non-empty JSON array of non-empty strings.
func StringList() Func {
	return func(value any) error {
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return fmt.Errorf("%w: must be a non-empty list of strings", ErrInvalid)
		}
		for i, item := range list {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: element %d must be a non-empty string", ErrInvalid, i)
			}
		}
		return nil
	}
}

// Screener reports whether free-form argument text carries dangerous tokens.
type Screener interface {
	ScreenFreeText(text string) error
}

// FreeText requires a non-empty string that passes the policy's dangerous
// token screening. Used for argument-only operations whose program is fixed.
func FreeText(screener Screener) Func {
	return func(value any) error {
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: must be a non-empty string", ErrInvalid)
		}
		if screener != nil {
			if err := screener.ScreenFreeText(s); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalid, err)
			}
		}
		return nil
	}
}
