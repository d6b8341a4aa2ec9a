package executor

import (
	"sync"

	"go.uber.org/zap"
)

var (
	testMu   sync.Mutex
	testExec *Executor
)

// TestExecutor returns an executor shared by the tests of a package. It is
// created on first use with an in-memory cache and a no-op logger; opts only
// apply to that first call.
func TestExecutor(opts ...ExecutorOption) (*Executor, error) {
	testMu.Lock()
	defer testMu.Unlock()
	if testExec != nil {
		return testExec, nil
	}
	e, err := New(append([]ExecutorOption{WithLogger(zap.NewNop().Sugar())}, opts...)...)
	if err != nil {
		return nil, err
	}
	testExec = e
	return e, nil
}

// CloseTestExecutor closes the shared executor. The next TestExecutor call
// creates a new one.
func CloseTestExecutor() error {
	testMu.Lock()
	defer testMu.Unlock()
	if testExec == nil {
		return nil
	}
	err := testExec.Close()
	testExec = nil
	return err
}
