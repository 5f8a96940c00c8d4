package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewMatchesSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
		code     string
	}{
		{KindInvalidIdentity, ErrInvalidIdentity, "R001"},
		{KindInvalidKey, ErrInvalidKey, "R002"},
		{KindUseAfterFree, ErrUseAfterFree, "R003"},
		{KindCycleDetected, ErrCycleDetected, "R004"},
		{KindResourceExhausted, ErrResourceExhausted, "R005"},
		{KindFrameAlreadyRunning, ErrFrameAlreadyRunning, "R006"},
		{KindFrameAborted, ErrFrameAborted, "R007"},
		{KindFrameClosed, ErrFrameClosed, "R008"},
		{KindQueueFull, ErrQueueFull, "R009"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "op", 7)
			if !Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", err)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
			if CodeOf(fmt.Errorf("wrapped: %w", err)) != tt.code {
				t.Errorf("CodeOf through wrapping lost the code")
			}
		})
	}
}

func TestErrorDoesNotMatchOtherKinds(t *testing.T) {
	err := New(KindUseAfterFree, "reactive.Read", 3)
	if Is(err, ErrInvalidIdentity) {
		t.Error("UseAfterFree should not match InvalidIdentity")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(KindCycleDetected, "reactive.Drain", "c4").WithDetail("via %s", "c2")
	got := err.Error()
	for _, want := range []string{"R004", "cycle detected", "reactive.Drain", "c4", "via c2"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := New(KindFrameAborted, "runtime.StartFrame", nil).Wrap(cause)
	if !Is(err, cause) {
		t.Error("wrapped cause not reachable")
	}
	if !Is(err, ErrFrameAborted) {
		t.Error("kind sentinel not matched")
	}
}

func TestKindOfPlainSentinel(t *testing.T) {
	if KindOf(ErrQueueFull) != KindQueueFull {
		t.Errorf("KindOf(ErrQueueFull) = %v", KindOf(ErrQueueFull))
	}
	if KindOf(fmt.Errorf("other")) != KindUnknown {
		t.Error("unrelated error should be KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil should be KindUnknown")
	}
}

func TestLookup(t *testing.T) {
	tmpl, ok := Lookup("R005")
	if !ok {
		t.Fatal("R005 not registered")
	}
	if tmpl.Message != "resource exhausted" {
		t.Errorf("Message = %q", tmpl.Message)
	}
	if _, ok := Lookup("Z999"); ok {
		t.Error("unknown code should not be found")
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New(KindInvalidKey, "fragment.AttachChild", "f3.1")
	out := err.Format()
	if !strings.HasPrefix(out, "ERROR R002: invalid fragment key") {
		t.Errorf("Format() header = %q", out)
	}
	if !strings.Contains(out, "fragment.AttachChild") {
		t.Errorf("Format() missing op: %q", out)
	}
	if !strings.Contains(Format(fmt.Errorf("plain")), "ERROR plain") {
		t.Error("Format of plain error should prefix ERROR")
	}
}
