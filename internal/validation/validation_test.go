package validation

import (
	"strings"
	"testing"
)

func TestValidatorRequired(t *testing.T) {
	v := New()
	if v.Required("slug", "  ") {
		t.Error("Required() = true for blank value")
	}
	if !v.Errors().HasErrors() {
		t.Error("expected an accumulated error")
	}

	v = New()
	if !v.Required("slug", "my-case") {
		t.Error("Required() = false for present value")
	}
	if !v.IsValid() {
		t.Error("IsValid() = false with no failures")
	}
}

func TestValidatorPhoneNumber(t *testing.T) {
	valid := []string{"+14155552671", "+44 20 7946 0958", "(415) 555-2671"}
	invalid := []string{"+0123", "not-a-number", "123abc"}

	for _, p := range valid {
		v := New()
		if !v.PhoneNumber("phoneNumber", p) {
			t.Errorf("PhoneNumber(%q) = false, want valid", p)
		}
	}
	for _, p := range invalid {
		v := New()
		if v.PhoneNumber("phoneNumber", p) {
			t.Errorf("PhoneNumber(%q) = true, want invalid", p)
		}
	}
}

func TestValidatorSlug(t *testing.T) {
	valid := []string{"abc", "my-case", "a1b2c3", "x0-9"}
	invalid := []string{"ab", "My-Case", "has_underscore", "-leading", strings.Repeat("a", 65)}

	for _, s := range valid {
		v := New()
		if !v.Slug("slug", s) {
			t.Errorf("Slug(%q) = false, want valid", s)
		}
	}
	for _, s := range invalid {
		v := New()
		if v.Slug("slug", s) {
			t.Errorf("Slug(%q) = true, want invalid", s)
		}
	}
}

func TestValidSlug(t *testing.T) {
	if !ValidSlug("case-123") {
		t.Error("ValidSlug(case-123) = false")
	}
	if ValidSlug("UPPER") {
		t.Error("ValidSlug(UPPER) = true")
	}
}

func TestValidatorMaxLength(t *testing.T) {
	v := New()
	if v.MaxLength("feedback", strings.Repeat("x", 11), 10) {
		t.Error("MaxLength() = true over the limit")
	}
	v = New()
	if !v.MaxLength("feedback", "short", 10) {
		t.Error("MaxLength() = false under the limit")
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("hello\x00 \x07world\n")
	want := "hello  world"
	if got != want {
		t.Errorf("SanitizeString() = %q, want %q", got, want)
	}
}

func TestSanitizePhoneNumber(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+1 (415) 555-2671", "+14155552671"},
		{"415.555.2671", "4155552671"},
		{"+", ""},
	}
	for _, tt := range tests {
		if got := SanitizePhoneNumber(tt.in); got != tt.want {
			t.Errorf("SanitizePhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuickValidateCallID(t *testing.T) {
	if err := QuickValidateCallID("CA123"); err != nil {
		t.Errorf("QuickValidateCallID(CA123) error = %v", err)
	}
	if err := QuickValidateCallID(" "); err == nil {
		t.Error("QuickValidateCallID(blank) error = nil")
	}
}
