package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/dashhub/errors"
)

// runner carries the lifecycle state shared by all adapters: started flag,
// cancellation, goroutine tracking and error accounting.
type runner struct {
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     atomic.Bool
	connected   atomic.Bool
	startTime   time.Time
	errorCount  atomic.Int64
	lastError   atomic.Value // stores string
}

// begin transitions to started and returns the adapter's child context.
// The caller must hold lifecycleMu.
func (r *runner) begin(ctx context.Context, component string) (context.Context, error) {
	if r.started.Load() {
		return nil, errors.WrapFatal(errors.ErrAlreadyStarted, component, "Start", "check started state")
	}

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.startTime = time.Now()
	r.started.Store(true)
	return childCtx, nil
}

// end cancels the adapter context and waits for its goroutines. The caller
// must hold lifecycleMu.
func (r *runner) end(timeout time.Duration, component string) error {
	if !r.started.Load() {
		return nil // already stopped
	}

	r.cancel()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			component, "Stop", "wait for goroutines")
	}

	r.connected.Store(false)
	r.started.Store(false)
	return nil
}

// trackError records the error and forwards it to the handler.
func (r *runner) trackError(handler Handler, err error) {
	if err == nil {
		return
	}
	r.errorCount.Add(1)
	r.lastError.Store(err.Error())
	handler.error(err)
}

// health builds the common health snapshot. Connection-oriented adapters
// are healthy only while connected; interval-based ones while started.
func (r *runner) health(requireConnection bool) HealthStatus {
	started := r.started.Load()
	healthy := started
	if requireConnection {
		healthy = started && r.connected.Load()
	}

	lastErr := ""
	if v := r.lastError.Load(); v != nil {
		lastErr = v.(string)
	}

	uptime := time.Duration(0)
	if started && !r.startTime.IsZero() {
		uptime = time.Since(r.startTime)
	}

	return HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(r.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}
