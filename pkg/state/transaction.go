package state

import (
	"context"
	"sync"
	"time"

	"github.com/localzure/localzure/pkg/serializer"
)

// txOpKind identifies a buffered transaction operation
type txOpKind int

const (
	txOpSet txOpKind = iota
	txOpDelete
)

// txOp is one buffered mutation. Values are serialized at record time so an
// unserializable value fails the transaction immediately instead of at commit.
type txOp struct {
	kind txOpKind
	key  string
	data []byte
	ttl  time.Duration
}

// txApplier is implemented by every backend to apply a buffered operation
// list atomically.
type txApplier interface {
	applyTx(ctx context.Context, namespace string, ops []txOp) error
	Get(ctx context.Context, namespace, key string) (any, bool, error)
}

// Transaction buffers mutations against one namespace and applies them
// atomically on Commit. Reads are not transactional: Get returns committed
// state and never sees the pending writes. After Commit or Rollback every
// method fails with ErrTransactionClosed.
type Transaction struct {
	namespace string
	backend   txApplier

	mu     sync.Mutex
	ops    []txOp
	closed bool
}

func newTransaction(backend txApplier, namespace string) *Transaction {
	return &Transaction{
		namespace: namespace,
		backend:   backend,
	}
}

// Set records a write to be applied at commit
func (t *Transaction) Set(key string, value any, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}

	data, err := serializer.Marshal(value)
	if err != nil {
		return err
	}

	t.ops = append(t.ops, txOp{kind: txOpSet, key: key, data: data, ttl: ttl})
	return nil
}

// Delete records a removal to be applied at commit
func (t *Transaction) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}

	t.ops = append(t.ops, txOp{kind: txOpDelete, key: key})
	return nil
}

// Get reads committed state; pending writes in this transaction are not visible
func (t *Transaction) Get(ctx context.Context, key string) (any, bool, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, false, ErrTransactionClosed
	}
	t.mu.Unlock()

	return t.backend.Get(ctx, t.namespace, key)
}

// Commit applies all buffered operations atomically and closes the transaction
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true

	if len(t.ops) == 0 {
		return nil
	}
	return t.backend.applyTx(ctx, t.namespace, t.ops)
}

// Rollback discards all buffered operations and closes the transaction
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true
	t.ops = nil
	return nil
}

// RunTransaction executes fn inside a transaction on the given namespace,
// committing on a nil return and rolling back otherwise. Cancellation inside
// fn rolls the transaction back like any other error.
func RunTransaction(ctx context.Context, b Backend, namespace string, fn func(tx *Transaction) error) error {
	tx := b.Begin(namespace)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}
