package internal

import "testing"

func TestRenderVerificationMessage(t *testing.T) {
	cases := []struct {
		template string
		code     string
		want     string
	}{
		{"Your code is ${verificationCode}", "123456", "Your code is 123456"},
		{"${verificationCode}", "000042", "000042"},
		{"${verificationCode} twice ${verificationCode}", "7", "7 twice 7"},
		{"no placeholder here", "123456", "no placeholder here"},
	}
	for _, tc := range cases {
		if got := RenderVerificationMessage(tc.template, tc.code); got != tc.want {
			t.Errorf("RenderVerificationMessage(%q, %q) = %q, want %q", tc.template, tc.code, got, tc.want)
		}
	}
}
