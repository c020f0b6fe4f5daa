//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"quiz-lab/domain/event"
)

// TransactionFunc receives the current value at a path (nil when absent) and
// returns the value to commit. Returning an error aborts without writing.
// It may run several times when a concurrent commit wins the race.
type TransactionFunc func(current any) (any, error)

// SharedStore is the replicated key-path store every component talks through.
// Paths are '/' separated; values are JSON-like (maps, strings, numbers,
// booleans, lists). Writing nil deletes.
type SharedStore interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	// Update merges every path in one atomic commit.
	Update(ctx context.Context, values map[string]any) error
	// Remove is delete-if-exists and never fails on absence.
	Remove(ctx context.Context, path string) error
	// Transaction is the conditional read-modify-write primitive.
	Transaction(ctx context.Context, path string, fn TransactionFunc) (any, error)
	// Subscribe blocks until ctx is done, calling onChange with an initial
	// snapshot and again after every committed change under path.
	Subscribe(ctx context.Context, path string, onChange func(value any)) error
	// ServerTimestamp is a placeholder resolved to the store clock at commit.
	ServerTimestamp() any
	// Now is the current store time in milliseconds.
	Now() int64
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if named, ok := w.(interface{ GetName() WorkerName }); ok && named.GetName() != "" {
		return string(named.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
