package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

type fakeAnalyzer struct {
	calls   int32
	block   bool
	started chan struct{}

	mu   sync.Mutex
	seen []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req entity.AnalysisRequest) entity.PipelineResult {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, common.RequestIDFromContext(ctx))
	f.mu.Unlock()
	if f.block {
		if f.started != nil {
			f.started <- struct{}{}
		}
		<-ctx.Done()
		return entity.Failed(constants.FailureCancelled, constants.MsgCancelled)
	}
	return entity.Success(entity.StructuredReport{Title: req.ImagePath}, false)
}

func wait(t *testing.T, ch <-chan entity.PipelineResult) entity.PipelineResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("result never resolved")
	}
	return entity.PipelineResult{}
}

func TestSubmitResolvesEachJob(t *testing.T) {
	f := &fakeAnalyzer{}
	q := NewProcessorQueue(f, nil, WithWorkers(3), WithQueueSize(2))
	defer q.Shutdown(context.Background())

	paths := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}
	chans := make([]<-chan entity.PipelineResult, len(paths))
	for i, p := range paths {
		chans[i] = q.Submit(context.Background(), entity.AnalysisRequest{ImagePath: p})
	}
	for i, ch := range chans {
		res := wait(t, ch)
		if !res.OK() || res.Report.Title != paths[i] {
			t.Fatalf("result[%d] = %+v, want report for %s", i, res, paths[i])
		}
	}
	if got := atomic.LoadInt32(&f.calls); got != int32(len(paths)) {
		t.Fatalf("calls = %d, want %d", got, len(paths))
	}
}

func TestSubmitCarriesRequestID(t *testing.T) {
	f := &fakeAnalyzer{}
	q := NewProcessorQueue(f, nil, WithWorkers(1))
	defer q.Shutdown(context.Background())

	ctx := common.WithRequestID(context.Background(), "req-42")
	wait(t, q.Submit(ctx, entity.AnalysisRequest{ImagePath: "x.jpg"}))

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seen) != 1 || f.seen[0] != "req-42" {
		t.Fatalf("request ids = %v, want [req-42]", f.seen)
	}
}

func TestSubmitAfterShutdownIsCancelled(t *testing.T) {
	f := &fakeAnalyzer{}
	q := NewProcessorQueue(f, nil)
	q.Shutdown(context.Background())

	res := wait(t, q.Submit(context.Background(), entity.AnalysisRequest{ImagePath: "x.jpg"}))
	if res.OK() || res.Code != constants.CodeCancelled {
		t.Fatalf("Submit() after shutdown = %+v, want Cancelled", res)
	}
	if f.calls != 0 {
		t.Fatalf("calls = %d, want 0", f.calls)
	}
}

func TestCallerCancelResolvesCancelled(t *testing.T) {
	f := &fakeAnalyzer{block: true, started: make(chan struct{}, 1)}
	q := NewProcessorQueue(f, nil, WithWorkers(1))
	defer q.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Submit(ctx, entity.AnalysisRequest{ImagePath: "x.jpg"})
	<-f.started
	cancel()

	if res := wait(t, ch); res.Code != constants.CodeCancelled {
		t.Fatalf("result = %+v, want Cancelled", res)
	}
}

func TestProcessTimeoutCancelsRun(t *testing.T) {
	f := &fakeAnalyzer{block: true}
	q := NewProcessorQueue(f, nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond))
	defer q.Shutdown(context.Background())

	if res := wait(t, q.Submit(context.Background(), entity.AnalysisRequest{ImagePath: "x.jpg"})); res.Code != constants.CodeCancelled {
		t.Fatalf("result = %+v, want Cancelled", res)
	}
}

func TestShutdownDeadlineCancelsInFlight(t *testing.T) {
	f := &fakeAnalyzer{block: true, started: make(chan struct{}, 1)}
	q := NewProcessorQueue(f, nil, WithWorkers(1), WithQueueSize(4))

	first := q.Submit(context.Background(), entity.AnalysisRequest{ImagePath: "a.jpg"})
	second := q.Submit(context.Background(), entity.AnalysisRequest{ImagePath: "b.jpg"})
	<-f.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	q.Shutdown(ctx)

	for i, ch := range []<-chan entity.PipelineResult{first, second} {
		if res := wait(t, ch); res.Code != constants.CodeCancelled {
			t.Fatalf("result[%d] = %+v, want Cancelled", i, res)
		}
	}
}
