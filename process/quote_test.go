package process_test

import (
	"os/exec"
	"testing"

	"github.com/kbukum/cmdkit/process"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"plain", "'plain'"},
		{"it's", `'it'\''s'`},
		{"a b", "'a b'"},
		{"''", `''\'''\'''`},
	}
	for _, tc := range tests {
		if got := process.ShellQuote(tc.in); got != tc.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFullCommandQuote(t *testing.T) {
	if got := process.FullCommandQuote("ls -l", nil); got != "ls -l" {
		t.Errorf("expected bare command, got %q", got)
	}
	got := process.FullCommandQuote("ssh", []string{"-p", "22", "it's"})
	want := `ssh '-p' '22' 'it'\''s'`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestShellQuoteRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"simple",
		"with space",
		"it's",
		"'leading and trailing'",
		`back\slash`,
		"$HOME `id` $(id)",
		"glob * ? [a-z]",
		"semi; colon && pipe | amp &",
		"new\nline",
		`"double"`,
		"tab\there",
		"!bang #hash ~tilde",
	}
	for _, in := range inputs {
		out, err := exec.Command("sh", "-c", "printf '%s' "+process.ShellQuote(in)).Output()
		if err != nil {
			t.Fatalf("sh failed for %q: %v", in, err)
		}
		if string(out) != in {
			t.Errorf("round trip of %q produced %q", in, out)
		}
	}
}

func TestFullCommandQuoteRoundTrip(t *testing.T) {
	args := []string{"%s|", "a b", "it's", "$x", ""}
	out, err := exec.Command("sh", "-c", process.FullCommandQuote("printf", args)).Output()
	if err != nil {
		t.Fatalf("sh failed: %v", err)
	}
	if want := "a b|it's|$x||"; string(out) != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}
