package util

import "testing"

func TestHideAPIKey(t *testing.T) {
	cases := map[string]string{
		"sk-secret1234567890": "sk-s...7890",
		"abcdefgh":            "ab...gh",
		"abcd":                "a...d",
		"ab":                  "ab",
	}
	for in, want := range cases {
		if got := HideAPIKey(in); got != want {
			t.Errorf("HideAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskAuthorizationHeader(t *testing.T) {
	if got := MaskAuthorizationHeader("Bearer eyJhbGciOiJIUzI1NiJ9"); got != "Bearer eyJh...NiJ9" {
		t.Errorf("unexpected mask %q", got)
	}
	if got := MaskAuthorizationHeader("token1234567"); got != "toke...4567" {
		t.Errorf("unexpected mask %q", got)
	}
}
