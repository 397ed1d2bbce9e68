package dispatcher

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/sandbox"
	"github.com/ComputClaw/airlock/internal/app/storage/memory"
	"github.com/ComputClaw/airlock/pkg/errors"
)

func waitForTerminal(t *testing.T, d *Dispatcher, id string) *domain.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e, err := d.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if e != nil && e.Status.IsTerminal() {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached a terminal status", id)
	return nil
}

func waitForStatus(t *testing.T, d *Dispatcher, id string, status domain.Status) *domain.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e, err := d.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if e != nil && e.Status == status {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached status %s", id, status)
	return nil
}

func TestSubmitCompletesHappyPath(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 2)
	d := New(pool, memory.New())

	id, err := d.Submit("p1", `set_result({ok: true});`, nil, time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	e := waitForTerminal(t, d, id)
	if e.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (err=%s)", e.Status, e.ErrorMessage)
	}
	if pool.Busy() != 0 {
		t.Fatalf("expected slot released, busy=%d", pool.Busy())
	}
}

func TestSubmitSuspendAndRespondRoundTrip(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 1)
	d := New(pool, memory.New())

	id, err := d.Submit("p1", `
		var v = llm.complete("2+2?");
		set_result({answer: v});
	`, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	e := waitForStatus(t, d, id, domain.StatusAwaitingLLM)
	if e.PendingLLM == nil || e.PendingLLM.Prompt != "2+2?" {
		t.Fatalf("expected pending llm prompt, got %#v", e.PendingLLM)
	}

	if _, err := d.Respond(id, "4"); err != nil {
		t.Fatalf("respond: %v", err)
	}

	final := waitForTerminal(t, d, id)
	if final.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	m := final.Result.(map[string]any)
	if m["answer"] != "4" {
		t.Fatalf("expected resumed value, got %#v", m)
	}
}

func TestRespondRejectsWrongState(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 1)
	d := New(pool, memory.New())

	id, err := d.Submit("p1", `set_result(1);`, nil, time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForTerminal(t, d, id)

	if _, err := d.Respond(id, "x"); !errors.Is(err, errors.CodeWrongState) {
		t.Fatalf("expected CodeWrongState, got %v", err)
	}
}

func TestSubmitRejectsWhenRateLimited(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 2)
	d := New(pool, memory.New(), WithSubmitRateLimit(rate.Limit(0), 0))

	if _, err := d.Submit("p1", `set_result(1);`, nil, time.Second); !errors.Is(err, errors.CodeOverloaded) {
		t.Fatalf("expected CodeOverloaded, got %v", err)
	}
}

func TestSecretsAreSanitizedOnCompletion(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 1)
	d := New(pool, memory.New())

	id, err := d.Submit("p1", `
		console.log("using " + settings.get("API_KEY"));
		set_result("done with " + settings.get("API_KEY"));
	`, map[string]string{"API_KEY": "sk-live-abc1234"}, time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	e := waitForTerminal(t, d, id)
	if e.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", e.Status, e.ErrorMessage)
	}
	if got := e.Stdout; got == "" || got == "using sk-live-abc1234\n" {
		t.Fatalf("expected stdout to be redacted, got %q", got)
	}
	resultStr, _ := e.Result.(string)
	if resultStr == "" || resultStr == "done with sk-live-abc1234" {
		t.Fatalf("expected result to be redacted, got %q", resultStr)
	}
}

func TestLLMWaitTimeoutFiresWhenRespondNeverCalled(t *testing.T) {
	pool := sandbox.NewPool(sandbox.NewGojaBackend(), 1)
	d := New(pool, memory.New(), WithLLMWaitTimeout(20*time.Millisecond))

	id, err := d.Submit("p1", `
		console.log("using " + settings.get("API_KEY"));
		var v = llm.complete("hang on");
		set_result(v);
	`, map[string]string{"API_KEY": "sk-live-abc1234"}, 5*time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, d, id, domain.StatusAwaitingLLM)

	e := waitForTerminal(t, d, id)
	if e.Status != domain.StatusTimeout {
		t.Fatalf("expected timeout, got %s", e.Status)
	}
}

// TestForceLLMTimeoutSanitizesUsingStoredSecrets exercises forceLLMTimeout
// directly, proving it reads the execution's secrets out of d.inflight
// before finishing it rather than finishing with none (which would skip
// sanitization entirely).
func TestForceLLMTimeoutSanitizesUsingStoredSecrets(t *testing.T) {
	d := New(sandbox.NewPool(sandbox.NewGojaBackend(), 1), memory.New())

	d.mu.Lock()
	d.execs["e1"] = &domain.Execution{
		ID:     "e1",
		Status: domain.StatusAwaitingLLM,
		Stdout: "using sk-live-abc1234 already logged",
	}
	d.inflight["e1"] = &inflight{secrets: map[string]string{"API_KEY": "sk-live-abc1234"}}
	d.mu.Unlock()

	d.forceLLMTimeout("e1")

	e, err := d.Poll(context.Background(), "e1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if e.Status != domain.StatusTimeout {
		t.Fatalf("expected timeout, got %s", e.Status)
	}
	want := "using [REDACTED...1234] already logged"
	if e.Stdout != want {
		t.Fatalf("expected stdout redacted, got %q", e.Stdout)
	}
}
