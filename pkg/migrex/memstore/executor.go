package memstore

import (
	"context"
	"sync"
)

// FakeExecutor is a ScriptExecutor double for tests that don't need a
// real database: it records executed script bodies and lets tests
// control emptiness and transactionality.
type FakeExecutor struct {
	mu sync.Mutex

	empty         bool
	transactional bool
	schemas       []string
	executed      [][]byte
	failOn        func(body []byte) error
}

// NewFakeExecutor returns a FakeExecutor that reports the target
// database as empty and transactional until configured otherwise.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{empty: true, transactional: true}
}

// SetEmpty controls the result of IsEmpty.
func (f *FakeExecutor) SetEmpty(empty bool) { f.empty = empty }

// SetTransactional controls the result of Transactional.
func (f *FakeExecutor) SetTransactional(v bool) { f.transactional = v }

// SetSchemas controls the result of EnumerateSchemas.
func (f *FakeExecutor) SetSchemas(schemas ...string) { f.schemas = schemas }

// FailOn installs a hook that can make ExecuteScript fail for a given
// body, simulating a broken migration.
func (f *FakeExecutor) FailOn(hook func(body []byte) error) { f.failOn = hook }

// Executed returns every script body ExecuteScript ran without error,
// in order; bodies rejected by the FailOn hook are not recorded.
func (f *FakeExecutor) Executed() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.executed))
	copy(out, f.executed)
	return out
}

func (f *FakeExecutor) ExecuteScript(ctx context.Context, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(body); err != nil {
			return err
		}
	}
	f.executed = append(f.executed, body)
	return nil
}

func (f *FakeExecutor) EnumerateSchemas(ctx context.Context) ([]string, error) {
	return f.schemas, nil
}

func (f *FakeExecutor) DropSchema(ctx context.Context, schema string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.schemas[:0:0]
	for _, s := range f.schemas {
		if s != schema {
			kept = append(kept, s)
		}
	}
	f.schemas = kept
	return nil
}

func (f *FakeExecutor) IsEmpty(ctx context.Context) (bool, error) {
	return f.empty, nil
}

func (f *FakeExecutor) Transactional() bool {
	return f.transactional
}
