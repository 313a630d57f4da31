package chain

import (
	"errors"
	"testing"
)

func TestExtractRejectionFromAssertionStack(t *testing.T) {
	raw := `Error 3050003: eosio_assert_message assertion failure
{"processed":{"action_traces":[{"except":{"message":"assertion failure with message: insufficient balance","stack":[{"data":{"s":"insufficient balance"}}]}}]}}`

	msg, ok := extractRejection(raw)
	if !ok {
		t.Fatal("expected a rejection message")
	}
	if msg != "insufficient balance" {
		t.Fatalf("message: got=%q want=%q", msg, "insufficient balance")
	}
}

func TestExtractRejectionFallsBackToExceptMessage(t *testing.T) {
	raw := `{"processed":{"action_traces":[{"except":{"message":"symbol precision mismatch","stack":[]}}]}}`
	msg, ok := extractRejection(raw)
	if !ok || msg != "symbol precision mismatch" {
		t.Fatalf("got=%q ok=%v", msg, ok)
	}
}

func TestExtractRejectionFallsBackToErrorDetails(t *testing.T) {
	raw := `cleos: {"error":{"details":[{"message":"unknown order"}]}}`
	msg, ok := extractRejection(raw)
	if !ok || msg != "unknown order" {
		t.Fatalf("got=%q ok=%v", msg, ok)
	}
}

func TestExtractRejectionRefusesNonJSON(t *testing.T) {
	for _, raw := range []string{
		"connect to 127.0.0.1:8888 failed",
		"",
		"{ not json at all",
	} {
		if msg, ok := extractRejection(raw); ok {
			t.Fatalf("raw=%q: unexpected message %q", raw, msg)
		}
	}
}

func TestRejectionErrorIdentity(t *testing.T) {
	var err error = &RejectionError{Message: "insufficient balance"}
	if !IsRejection(err) {
		t.Fatal("direct rejection not recognized")
	}
	if IsRejection(ErrUnavailable) {
		t.Fatal("unavailable misclassified as rejection")
	}
	if IsRejection(nil) {
		t.Fatal("nil misclassified as rejection")
	}
	if !errors.Is(errors.Join(ErrUnavailable, nil), ErrUnavailable) {
		t.Fatal("wrapped unavailable not matched")
	}
}
