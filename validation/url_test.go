package validation

import (
	"errors"
	"testing"
)

func TestIsURL(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com",
		"example.com",
		"www.example.com/path/to/page",
		"https://example.com:8123/lovelace?kiosk",
		"localhost",
		"http://localhost:8123",
		"192.168.1.10",
		"http://192.168.1.10:8123/dashboard",
		"sub.domain.example.org",
	}
	for _, s := range valid {
		if !IsURL(s) {
			t.Errorf("IsURL(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"http://",
		"ftp://example.com",
		"example",
		"http://exa mple.com",
	}
	for _, s := range invalid {
		if IsURL(s) {
			t.Errorf("IsURL(%q) = true, want false", s)
		}
	}
}

func TestURLValidator(t *testing.T) {
	v := URL()
	if err := v("http://example.com"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := v("not a url"); !errors.Is(err, ErrInvalid) {
		t.Errorf("invalid URL accepted")
	}
	if err := v(42); !errors.Is(err, ErrInvalid) {
		t.Errorf("non-string accepted")
	}
}
