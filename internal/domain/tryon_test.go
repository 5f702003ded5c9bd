package domain

import "testing"

func TestTryOnStateDerivation(t *testing.T) {
	rec := TryOn{ID: "r1"}
	if got := rec.State(); got != StatePending {
		t.Fatalf("fresh record state = %q, want %q", got, StatePending)
	}

	rec.CleanedOutfitKey = "cleaned-1"
	if got := rec.State(); got != StatePending {
		t.Fatalf("intermediate output must not complete the record, state = %q", got)
	}

	rec.OutfitTryOnKey = "result-1"
	if got := rec.State(); got != StateComplete {
		t.Fatalf("terminal output set, state = %q, want %q", got, StateComplete)
	}
}

func TestTryOnStateFailed(t *testing.T) {
	rec := TryOn{ID: "r1", Failed: true, FailureReason: "gpu oom"}
	if got := rec.State(); got != StateFailed {
		t.Fatalf("state = %q, want %q", got, StateFailed)
	}

	// A terminal key outranks a stale failure flag.
	rec.OutfitTryOnKey = "result-1"
	if got := rec.State(); got != StateComplete {
		t.Fatalf("state = %q, want %q", got, StateComplete)
	}
}

func TestCompletionEventAccessors(t *testing.T) {
	ev := CompletionEvent{TryOnID: "r1", Status: EventDone}
	if ev.Result() != "" || ev.Reason() != "" {
		t.Fatalf("nil pointers should read as empty strings")
	}

	key := "k3"
	reason := "timeout"
	ev.ResultKey = &key
	ev.Error = &reason
	if ev.Result() != "k3" {
		t.Fatalf("Result() = %q, want k3", ev.Result())
	}
	if ev.Reason() != "timeout" {
		t.Fatalf("Reason() = %q, want timeout", ev.Reason())
	}
}
