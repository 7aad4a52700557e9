package logger

import (
	"context"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "joh***@example.com"},
		{"ab@x.io", "ab***@x.io"},
		{"@example.com", "***@example.com"},
		{"not-an-email", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+12345678901", "+123***8901"},
		{"12345", "***2345"},
		{"123", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.10.20", "192.168.*.*"},
		{"2001:db8:85a3:8d3:1319:8a2e:370:7348", "2001:db8:85a3:8d3:*:*:*:*"},
		{"::1", "***"},
		{"10.0.0", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskIP(tt.in); got != tt.want {
			t.Errorf("MaskIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"supersecret", "su***et"},
		{"abcd", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskString(tt.in); got != tt.want {
			t.Errorf("MaskString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWithContextWithoutLogger(t *testing.T) {
	if got := WithContext(context.Background()); got == nil {
		t.Fatal("WithContext returned nil logger")
	}
}
