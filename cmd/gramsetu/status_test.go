package main

import "testing"

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":                   "(not set)",
		"abc":                "...",
		"abcdefg":            "...",
		"abcdefgh":           "abcd...efgh",
		"0123456789abcdef":   "0123...cdef",
		"0123456789abcdefgh": "0123456789ab...efgh",
	}
	for in, want := range cases {
		if got := maskKey(in); got != want {
			t.Fatalf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
