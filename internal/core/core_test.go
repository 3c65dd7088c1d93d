package core

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

// recorder collects lifecycle events across modules.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type lifecycleMod struct {
	id       string
	rec      *recorder
	startErr error
	runErr   error
	runs     bool
}

func (m *lifecycleMod) ModuleInfo() ModuleInfo { return ModuleInfo{ID: ModuleID(m.id)} }

func (m *lifecycleMod) Start() error {
	m.rec.add("start " + m.id)
	return m.startErr
}

func (m *lifecycleMod) Stop(context.Context) error {
	m.rec.add("stop " + m.id)
	return nil
}

// runnerMod also blocks in Run.
type runnerMod struct {
	lifecycleMod
}

func (m *runnerMod) Run(ctx context.Context) error {
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestApp_StartStopOrder(t *testing.T) {
	rec := &recorder{}
	app := NewApp(NewAppContext(nil, "/state"))
	for _, id := range []string{"a", "b", "c"} {
		app.AppendModule(id, &lifecycleMod{id: id, rec: rec})
	}

	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	app.Stop()

	want := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	app := NewApp(NewAppContext(nil, "/state"))
	app.AppendModule("a", &lifecycleMod{id: "a", rec: rec})
	app.AppendModule("b", &lifecycleMod{id: "b", rec: rec, startErr: errors.New("boom")})
	app.AppendModule("c", &lifecycleMod{id: "c", rec: rec})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	want := []string{"start a", "start b", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_RunUntilCancelled(t *testing.T) {
	rec := &recorder{}
	app := NewApp(NewAppContext(nil, "/state"))
	app.AppendModule("store", &lifecycleMod{id: "store", rec: rec})
	app.AppendModule("poller", &runnerMod{lifecycleMod{id: "poller", rec: rec}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	want := []string{"start store", "start poller", "stop poller", "stop store"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_RunnerFailureEndsRun(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("listener died")
	app := NewApp(NewAppContext(nil, "/state"))
	app.AppendModule("gateway", &runnerMod{lifecycleMod{id: "gateway", rec: rec, runErr: boom}})
	app.AppendModule("poller", &runnerMod{lifecycleMod{id: "poller", rec: rec}})

	err := app.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if got := rec.list(); got[len(got)-1] != "stop gateway" {
		t.Errorf("last event = %q, want stop gateway", got[len(got)-1])
	}
}

func TestApp_Module(t *testing.T) {
	app := NewApp(NewAppContext(nil, "/state"))
	mod := &lifecycleMod{id: "x", rec: &recorder{}}
	app.AppendModule("x", mod)

	got, ok := app.Module("x")
	if !ok || got != mod {
		t.Errorf("Module(x) = %v, %v", got, ok)
	}
	if _, ok := app.Module("y"); ok {
		t.Error("Module(y) should not be found")
	}
}
