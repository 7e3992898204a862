package signals

import (
	"syscall"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    syscall.Signal
		wantErr bool
	}{
		{"TERM", syscall.SIGTERM, false},
		{"SIGTERM", syscall.SIGTERM, false},
		{"sigint", syscall.SIGINT, false},
		{" usr1 ", syscall.SIGUSR1, false},
		{"1", syscall.SIGHUP, false},
		{"15", syscall.SIGTERM, false},
		{"9", 0, true},
		{"KILL", 0, true},
		{"SIGFOO", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseAll(t *testing.T) {
	got, err := ParseAll([]string{"TERM", "HUP"})
	if err != nil || len(got) != 2 || got[0] != syscall.SIGTERM || got[1] != syscall.SIGHUP {
		t.Errorf("unexpected result %v, %v", got, err)
	}
	if _, err := ParseAll([]string{"TERM", "nope"}); err == nil {
		t.Error("expected error for unknown name")
	}
}
