package sanitizer

import (
	"testing"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

func TestRedactLongSecretKeepsLastFour(t *testing.T) {
	s := New([]string{"sk-live-abc1234"})
	got, fired := s.Redact("value is sk-live-abc1234 here")
	if !fired {
		t.Fatal("expected redaction to fire")
	}
	want := "value is [REDACTED...1234] here"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRedactShortSecretHasNoHint(t *testing.T) {
	s := New([]string{"ab12"})
	got, fired := s.Redact("token=ab12")
	if !fired {
		t.Fatal("expected redaction to fire")
	}
	if got != "token=[REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactSortsByDescendingLengthToAvoidShadowing(t *testing.T) {
	// "ab" is a substring of "ab12cd34"; redacting the short one first
	// would destroy the ability to detect the long one.
	s := New([]string{"ab", "ab12cd34"})
	got, fired := s.Redact("secret ab12cd34 done")
	if !fired {
		t.Fatal("expected redaction to fire")
	}
	if got != "secret [REDACTED...cd34] done" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactNoMatchLeavesTextUnchanged(t *testing.T) {
	s := New([]string{"sk-live-abc1234"})
	got, fired := s.Redact("nothing secret here")
	if fired {
		t.Fatal("did not expect redaction to fire")
	}
	if got != "nothing secret here" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeExecutionRedactsNestedStructuredResult(t *testing.T) {
	s := New([]string{"sk-live-abc1234"})
	e := &domain.Execution{
		Result: map[string]interface{}{
			"token": "sk-live-abc1234",
			"nested": []interface{}{
				"plain value",
				map[string]interface{}{"key": "sk-live-abc1234"},
			},
			"count": float64(2),
		},
	}
	if fired := s.SanitizeExecution(e); !fired {
		t.Fatal("expected redaction to fire")
	}
	result, ok := e.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map result, got %T", e.Result)
	}
	if result["token"] != "[REDACTED...1234]" {
		t.Fatalf("got token %q", result["token"])
	}
	nested, ok := result["nested"].([]interface{})
	if !ok || len(nested) != 2 {
		t.Fatalf("expected 2-element nested slice, got %#v", result["nested"])
	}
	if nested[0] != "plain value" {
		t.Fatalf("got nested[0] %q", nested[0])
	}
	inner, ok := nested[1].(map[string]interface{})
	if !ok || inner["key"] != "[REDACTED...1234]" {
		t.Fatalf("got nested[1] %#v", nested[1])
	}
	if result["count"] != float64(2) {
		t.Fatalf("expected count to pass through unchanged, got %#v", result["count"])
	}
}
