package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestGojaBackendCompletesWithSetResult(t *testing.T) {
	b := NewGojaBackend()
	out := b.Run(context.Background(), "e1", `
		console.log("hi");
		set_result({ok: true, key: settings.get("API_KEY")});
	`, map[string]string{"API_KEY": "sk-123"}, time.Second)

	if out.Kind != Completed {
		t.Fatalf("expected Completed, got %v (err=%v)", out.Kind, out.Err)
	}
	if out.Stdout != "hi\n" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
	m, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %#v", out.Result)
	}
	if m["key"] != "sk-123" {
		t.Fatalf("expected settings.get to surface the injected secret, got %v", m["key"])
	}
}

func TestGojaBackendSuspendsThenResumes(t *testing.T) {
	b := NewGojaBackend()
	out := b.Run(context.Background(), "e2", `
		var answer = llm.complete("what is 2+2?", "default");
		set_result({answer: answer});
	`, nil, time.Second)

	if out.Kind != Suspended {
		t.Fatalf("expected Suspended, got %v", out.Kind)
	}
	if out.Prompt != "what is 2+2?" {
		t.Fatalf("unexpected prompt %q", out.Prompt)
	}
	if out.ResumeHandle != "e2" {
		t.Fatalf("unexpected resume handle %q", out.ResumeHandle)
	}

	final := b.Resume(out.ResumeHandle, "4", time.Second)
	if final.Kind != Completed {
		t.Fatalf("expected Completed after resume, got %v (err=%v)", final.Kind, final.Err)
	}
	m := final.Result.(map[string]any)
	if m["answer"] != "4" {
		t.Fatalf("expected resumed value to flow back to script, got %v", m["answer"])
	}
}

func TestGojaBackendSupportsSequentialSuspends(t *testing.T) {
	b := NewGojaBackend()
	out := b.Run(context.Background(), "e3", `
		var a = llm.complete("first");
		var b = llm.complete("second");
		set_result({a: a, b: b});
	`, nil, time.Second)
	if out.Kind != Suspended || out.Prompt != "first" {
		t.Fatalf("expected first suspend, got %v %q", out.Kind, out.Prompt)
	}

	out = b.Resume("e3", "A", time.Second)
	if out.Kind != Suspended || out.Prompt != "second" {
		t.Fatalf("expected second suspend, got %v %q", out.Kind, out.Prompt)
	}

	out = b.Resume("e3", "B", time.Second)
	if out.Kind != Completed {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
	m := out.Result.(map[string]any)
	if m["a"] != "A" || m["b"] != "B" {
		t.Fatalf("unexpected result %#v", m)
	}
}

func TestGojaBackendReportsScriptErrors(t *testing.T) {
	b := NewGojaBackend()
	out := b.Run(context.Background(), "e4", `throw new Error("boom");`, nil, time.Second)
	if out.Kind != Failed {
		t.Fatalf("expected Failed, got %v", out.Kind)
	}
	if out.Err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestGojaBackendTimesOutOnInfiniteLoop(t *testing.T) {
	b := NewGojaBackend()
	out := b.Run(context.Background(), "e5", `while (true) {}`, nil, 50*time.Millisecond)
	if out.Kind != TimedOut {
		t.Fatalf("expected TimedOut, got %v", out.Kind)
	}
}

func TestResumeUnknownHandleFails(t *testing.T) {
	b := NewGojaBackend()
	out := b.Resume("does-not-exist", "x", time.Second)
	if out.Kind != Failed {
		t.Fatalf("expected Failed, got %v", out.Kind)
	}
}

func TestPoolAcquireReleaseAndSaturation(t *testing.T) {
	p := NewPool(NewGojaBackend(), 2)
	if !p.TryAcquire() || !p.TryAcquire() {
		t.Fatal("expected two acquires to succeed")
	}
	if p.TryAcquire() {
		t.Fatal("expected the third acquire to fail on a saturated pool")
	}
	if p.Idle() != 0 || p.Busy() != 2 {
		t.Fatalf("unexpected accounting: idle=%d busy=%d", p.Idle(), p.Busy())
	}
	p.Release()
	if p.Idle() != 1 {
		t.Fatalf("expected one idle slot after release, got %d", p.Idle())
	}
	if !p.TryAcquire() {
		t.Fatal("expected acquire to succeed again after release")
	}
}
