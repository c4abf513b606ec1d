package page

import (
	"errors"
	"sync"
)

// Op names a manager operation for fault injection.
type Op string

const (
	OpCreate    Op = "create"
	OpAllocate  Op = "allocate"
	OpAttach    Op = "attach"
	OpMarkDirty Op = "mark-dirty"
	OpFlush     Op = "flush"
	OpRecover   Op = "recover"
	OpClear     Op = "clear"
	OpDestroy   Op = "destroy"
)

// ErrInjected is the default error returned by an armed fault.
var ErrInjected = errors.New("page: injected fault")

type fault struct {
	after int // successful calls left before the fault fires
	err   error
}

// faults counts calls per operation and fails them once armed.
type faults struct {
	mu    sync.Mutex
	armed map[Op]*fault
	calls map[Op]int
}

func newFaults() *faults {
	return &faults{
		armed: make(map[Op]*fault),
		calls: make(map[Op]int),
	}
}

func (fs *faults) arm(op Op, after int, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	fs.armed[op] = &fault{after: after, err: err}
}

func (fs *faults) reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.armed = make(map[Op]*fault)
}

func (fs *faults) count(op Op) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls[op]
}

// hit records a call and returns the injected error once the budget is spent.
// An armed fault keeps failing until reset.
func (fs *faults) hit(op Op) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.calls[op]++
	f, ok := fs.armed[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	return f.err
}
