package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"homewatch/models"
	"homewatch/services"
	"homewatch/utils"
)

type staticLister struct {
	ids []string
	err error
}

func (l staticLister) ListActiveSearchIDs(context.Context) ([]string, error) {
	return l.ids, l.err
}

type fakeRunner struct {
	errs    map[string]error
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
	onRun   func()
	mu      sync.Mutex
	ran     []string
}

func (r *fakeRunner) Run(_ context.Context, id string) (*models.SearchRun, error) {
	r.calls.Add(1)
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if r.onRun != nil {
		r.onRun()
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.ran = append(r.ran, id)
	r.mu.Unlock()

	if err := r.errs[id]; err != nil {
		return nil, err
	}
	return &models.SearchRun{SearchID: id, Status: models.RunSuccess, NewItems: 2}, nil
}

func TestRunAllSummary(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"b": services.ErrRunInProgress,
		"c": errors.New("browser crashed"),
	}}
	s := New(staticLister{ids: []string{"a", "b", "c", "d"}}, runner, time.Hour, 2, 0, utils.Discard())

	got, err := s.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	want := Summary{Total: 4, Succeeded: 2, Failed: 1, Skipped: 1, NewItems: 4}
	if got != want {
		t.Errorf("RunAll() = %+v; want %+v", got, want)
	}
}

func TestRunAllBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	ids := []string{"1", "2", "3", "4", "5", "6"}
	s := New(staticLister{ids: ids}, runner, time.Hour, 2, 0, utils.Discard())

	if _, err := s.RunAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.calls.Load() != int32(len(ids)) {
		t.Errorf("runs = %d; want %d", runner.calls.Load(), len(ids))
	}
	if peak := runner.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d; want <= 2", peak)
	}
}

func TestRunAllListError(t *testing.T) {
	s := New(staticLister{err: errors.New("db down")}, &fakeRunner{}, time.Hour, 1, 0, utils.Discard())
	if _, err := s.RunAll(context.Background()); err == nil {
		t.Error("RunAll() error = nil; want list failure")
	}
}

func TestRunAllStopsStartingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{onRun: cancel}
	s := New(staticLister{ids: []string{"a", "b", "c"}}, runner, time.Hour, 1, 0, utils.Discard())

	got, err := s.RunAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Skipped < 1 || got.Succeeded+got.Skipped != 3 {
		t.Errorf("RunAll() = %+v; want queued searches skipped after cancel", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	runner.onRun = func() {
		if runner.calls.Load() >= 2 {
			cancel()
		}
	}
	s := New(staticLister{ids: []string{"a"}}, runner, 10*time.Millisecond, 1, 0, utils.Discard())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if runner.calls.Load() < 2 {
		t.Errorf("runs = %d; want at least 2 ticks", runner.calls.Load())
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	s := New(staticLister{}, &fakeRunner{}, 0, 1, 0, utils.Discard())
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() with zero interval error = nil")
	}
}

func TestRunSweepsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{onRun: cancel}
	s := New(staticLister{ids: []string{"a"}}, runner, time.Hour, 1, 0, utils.Discard())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not sweep before the first tick")
	}
	if runner.calls.Load() != 1 {
		t.Errorf("runs = %d; want 1 from the startup sweep", runner.calls.Load())
	}
}
