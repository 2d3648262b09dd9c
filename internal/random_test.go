package internal

import "testing"

func TestNewVerificationCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := NewVerificationCode()
		if err != nil {
			t.Fatalf("NewVerificationCode failed: %v", err)
		}
		if !IsVerificationCode(code) {
			t.Fatalf("code %q outside the five-digit range", code)
		}
	}
}

func TestNewNumericCodeRejectsBadRange(t *testing.T) {
	if _, err := NewNumericCode(10, 5); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if _, err := NewNumericCode(-1, 5); err == nil {
		t.Fatal("expected error for negative min")
	}
}

func TestIsVerificationCode(t *testing.T) {
	cases := map[string]bool{
		"10000":  true,
		"99999":  true,
		"09999":  false,
		"1234":   false,
		"123456": false,
		"12a45":  false,
		"":       false,
	}
	for in, want := range cases {
		if got := IsVerificationCode(in); got != want {
			t.Fatalf("IsVerificationCode(%q) = %v, want %v", in, got, want)
		}
	}
}
