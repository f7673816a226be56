package executor

import (
	"testing"
	"time"
)

func TestOutputHashIsDeterministic(t *testing.T) {
	a := &Result{Stdout: "ok", Stderr: "", ExitCode: 0}
	b := &Result{Stdout: "ok", Stderr: "", ExitCode: 0}
	if a.OutputHash() != b.OutputHash() {
		t.Errorf("identical results should hash identically: %q != %q", a.OutputHash(), b.OutputHash())
	}
}

func TestOutputHashDiffersOnDifferentOutput(t *testing.T) {
	a := &Result{Stdout: "ok", ExitCode: 0}
	b := &Result{Stdout: "fail", ExitCode: 1}
	if a.OutputHash() == b.OutputHash() {
		t.Error("different results must not hash the same")
	}
}

func TestOutputHashIsTruncatedTo16Chars(t *testing.T) {
	r := &Result{Stdout: "anything"}
	if got := len(r.OutputHash()); got != 16 {
		t.Errorf("OutputHash() length = %d, want 16", got)
	}
}

func TestTimedOutResultShape(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	r := TimedOutResult(start, 3, "context deadline exceeded")

	if r.Success {
		t.Error("a timed-out result must not be Success")
	}
	if !r.TimedOut {
		t.Error("expected TimedOut = true")
	}
	if r.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", r.ExitCode)
	}
	if r.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", r.RetryCount)
	}
	if r.DurationSecs < 2 {
		t.Errorf("DurationSecs = %v, want >= 2 (measured from a start 2s in the past)", r.DurationSecs)
	}
	if r.Err == "" || r.Stderr == "" {
		t.Error("expected both Err and Stderr to carry the timeout message")
	}
}
