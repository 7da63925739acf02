package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"subtrack/internal/notify"
)

// Scheduled is one notification held by the in-process port.
type Scheduled struct {
	Content notify.Content
	FireAt  time.Time
}

// Port is an in-process notification port. It backs the server when no
// broker is configured and doubles as the test double for the scheduler:
// it records every call and can be told to deny permission or fail.
type Port struct {
	mu         sync.Mutex
	permission bool
	seq        int
	scheduled  map[string]Scheduled

	cancelCalls    int
	cancelAllCalls int
	failWith       error
}

func New() *Port {
	return &Port{
		permission: true,
		scheduled:  make(map[string]Scheduled),
	}
}

// SetPermission flips the simulated system-level permission.
func (p *Port) SetPermission(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = granted
}

// FailWith makes subsequent port calls return err. Pass nil to heal.
func (p *Port) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

func (p *Port) Schedule(_ context.Context, content notify.Content, fireAt time.Time) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", p.failWith
	}
	p.seq++
	handle := fmt.Sprintf("ntf-%d", p.seq)
	p.scheduled[handle] = Scheduled{Content: content, FireAt: fireAt}
	return handle, nil
}

func (p *Port) Cancel(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	if p.failWith != nil {
		return p.failWith
	}
	delete(p.scheduled, handle)
	return nil
}

func (p *Port) CancelAll(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelAllCalls++
	if p.failWith != nil {
		return p.failWith
	}
	p.scheduled = make(map[string]Scheduled)
	return nil
}

func (p *Port) HasPermission(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// Get returns the scheduled notification for a handle.
func (p *Port) Get(handle string) (Scheduled, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scheduled[handle]
	return s, ok
}

// Count returns the number of live notifications.
func (p *Port) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scheduled)
}

// CancelCalls returns how many times Cancel was invoked.
func (p *Port) CancelCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelCalls
}

// CancelAllCalls returns how many times CancelAll was invoked.
func (p *Port) CancelAllCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelAllCalls
}
