package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// interruptGrace bounds how long GojaBackend waits for a goja.Interrupt to
// actually unwind the running script before giving up and leaking the
// goroutine (scripts are expected to yield between statements; goja checks
// for interrupts at each VM instruction boundary).
const interruptGrace = 2 * time.Second

type suspendSignal struct {
	prompt string
	model  string
}

type execution struct {
	vm        *goja.Runtime
	suspendCh chan suspendSignal
	resumeCh  chan string
	doneCh    chan Outcome
}

// GojaBackend implements Backend with the pure-Go goja JS runtime, binding
// the settings/llm/set_result shim described in spec §4.8. Suspension across
// llm.complete calls is cooperative: the bound function parks the running
// goroutine on a channel rather than returning synchronously, and Run/Resume
// race that channel against the script's terminal completion.
type GojaBackend struct {
	mu      sync.Mutex
	pending map[string]*execution
}

// NewGojaBackend constructs an empty GojaBackend.
func NewGojaBackend() *GojaBackend {
	return &GojaBackend{pending: make(map[string]*execution)}
}

func (b *GojaBackend) Run(_ context.Context, id, script string, secrets map[string]string, timeout time.Duration) Outcome {
	ex := &execution{
		vm:        goja.New(),
		suspendCh: make(chan suspendSignal, 1),
		resumeCh:  make(chan string),
		doneCh:    make(chan Outcome, 1),
	}
	b.mu.Lock()
	b.pending[id] = ex
	b.mu.Unlock()

	go b.runScript(ex, script, secrets)
	return b.wait(id, ex, timeout)
}

func (b *GojaBackend) Resume(id string, llmResponse string, timeout time.Duration) Outcome {
	b.mu.Lock()
	ex, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return Outcome{Kind: Failed, Err: fmt.Errorf("unknown resume handle %q", id)}
	}
	ex.resumeCh <- llmResponse
	return b.wait(id, ex, timeout)
}

func (b *GojaBackend) wait(id string, ex *execution, budget time.Duration) Outcome {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case sig := <-ex.suspendCh:
		return Outcome{Kind: Suspended, Prompt: sig.prompt, Model: sig.model, ResumeHandle: id}
	case out := <-ex.doneCh:
		b.clear(id)
		return out
	case <-timer.C:
		ex.vm.Interrupt("execution timed out")
		select {
		case out := <-ex.doneCh:
			out.Kind = TimedOut
			b.clear(id)
			return out
		case <-time.After(interruptGrace):
			b.clear(id)
			return Outcome{Kind: TimedOut}
		}
	}
}

func (b *GojaBackend) clear(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *GojaBackend) runScript(ex *execution, script string, secrets map[string]string) {
	vm := ex.vm
	var mu sync.Mutex
	var stdout, stderr strings.Builder
	var result any

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		mu.Lock()
		defer mu.Unlock()
		stdout.WriteString(joinArgs(call.Arguments))
		stdout.WriteByte('\n')
		return goja.Undefined()
	})
	_ = console.Set("error", func(call goja.FunctionCall) goja.Value {
		mu.Lock()
		defer mu.Unlock()
		stderr.WriteString(joinArgs(call.Arguments))
		stderr.WriteByte('\n')
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		mu.Lock()
		defer mu.Unlock()
		stdout.WriteString(joinArgs(call.Arguments))
		stdout.WriteByte('\n')
		return goja.Undefined()
	})

	settings := vm.NewObject()
	_ = settings.Set("get", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		if v, ok := secrets[call.Arguments[0].String()]; ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = settings.Set("keys", func(call goja.FunctionCall) goja.Value {
		keys := make([]string, 0, len(secrets))
		for k := range secrets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return vm.ToValue(keys)
	})
	_ = vm.Set("settings", settings)

	llmObj := vm.NewObject()
	_ = llmObj.Set("complete", func(call goja.FunctionCall) goja.Value {
		var prompt string
		if len(call.Arguments) > 0 {
			prompt = call.Arguments[0].String()
		}
		model := "default"
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			model = call.Arguments[1].String()
		}
		ex.suspendCh <- suspendSignal{prompt: prompt, model: model}
		resp, ok := <-ex.resumeCh
		if !ok {
			panic(vm.ToValue("execution aborted"))
		}
		return vm.ToValue(resp)
	})
	_ = vm.Set("llm", llmObj)

	_ = vm.Set("set_result", func(call goja.FunctionCall) goja.Value {
		mu.Lock()
		defer mu.Unlock()
		if len(call.Arguments) > 0 {
			result = call.Arguments[0].Export()
		}
		return goja.Undefined()
	})

	_, runErr := vm.RunString(script)

	mu.Lock()
	out := stdout.String()
	errOut := stderr.String()
	res := result
	mu.Unlock()

	if runErr != nil {
		if _, ok := runErr.(*goja.InterruptedError); ok {
			ex.doneCh <- Outcome{Kind: TimedOut, Stdout: out, Stderr: errOut}
			return
		}
		ex.doneCh <- Outcome{Kind: Failed, Err: runErr, Stdout: out, Stderr: errOut}
		return
	}
	ex.doneCh <- Outcome{Kind: Completed, Result: res, Stdout: out, Stderr: errOut}
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
