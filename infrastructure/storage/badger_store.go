package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quiz-lab/contract"
	"quiz-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	defaultMaxAttempts   = 16
	defaultProbeInterval = 5 * time.Millisecond
	probeTTL             = time.Minute
)

// BadgerStore is the SharedStore bound to BadgerDB.
//
// Each document (collection/id) is one badger key holding a protobuf Struct.
// Every write is a read-modify-write of whole documents inside a single
// badger transaction, so badger's optimistic conflict detection turns any two
// overlapping commits into one winner and one ErrConflict. Losers are re-run
// against fresh data, which is what gives Transaction its test-and-set
// semantics.
type BadgerStore struct {
	db            *badger.DB
	log           *slog.Logger
	clock         *clock
	maxAttempts   int
	probeInterval time.Duration
}

var _ contract.SharedStore = (*BadgerStore)(nil)

type Option func(*BadgerStore)

// WithClock replaces the wall clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *BadgerStore) {
		s.clock = newClock(now)
	}
}

// WithMaxAttempts bounds how many times a conflicting commit is re-run.
func WithMaxAttempts(n int) Option {
	return func(s *BadgerStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewBadgerStore(db *badger.DB, log *slog.Logger, opts ...Option) *BadgerStore {
	s := &BadgerStore{
		db:            db,
		log:           log,
		clock:         newClock(time.Now),
		maxAttempts:   defaultMaxAttempts,
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BadgerStore) ServerTimestamp() any {
	return serverTimestamp{}
}

func (s *BadgerStore) Now() int64 {
	return s.clock.current()
}

// Get reads a document, a field inside it, or a whole collection as a map
// of id to document. Absent values are returned as nil without error.
func (s *BadgerStore) Get(ctx context.Context, path string) (any, error) {
	loc, err := locate(path)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var value any
	err = s.db.View(func(txn *badger.Txn) error {
		if loc.isCollection() {
			docs, err := s.scan(txn, loc)
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				value = docs
			}
			return nil
		}
		doc, err := s.load(txn, loc.key())
		if err != nil {
			return err
		}
		value = getIn(doc, loc.field)
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return value, nil
}

func (s *BadgerStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

func (s *BadgerStore) Remove(ctx context.Context, path string) error {
	return s.Update(ctx, map[string]any{path: nil})
}

// Update applies every path in one badger transaction. Paths are applied in
// lexical order, so a parent write lands before a write to one of its children.
func (s *BadgerStore) Update(ctx context.Context, values map[string]any) error {
	paths := lo.Keys(values)
	sort.Strings(paths)
	locations := make([]location, 0, len(paths))
	for _, p := range paths {
		loc, err := locate(p)
		if err != nil {
			return err
		}
		locations = append(locations, loc)
	}

	return s.retry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			ts := s.clock.stamp()
			pending := newPendingDocs(s, txn)

			for i, loc := range locations {
				value, err := normalize(values[paths[i]], ts)
				if err != nil {
					return err
				}
				if loc.isCollection() {
					if err = pending.replaceCollection(loc, value); err != nil {
						return err
					}
					continue
				}
				if err = checkDocument(loc, value); err != nil {
					return err
				}
				doc, err := pending.get(loc.doc)
				if err != nil {
					return err
				}
				pending.put(loc.doc, setIn(doc, loc.field, value))
			}
			return pending.flush()
		})
	})
}

// Transaction runs fn against the current value at path and commits what it
// returns. If another commit touched the same document in between, badger
// rejects ours with ErrConflict and fn runs again on the fresh value.
func (s *BadgerStore) Transaction(ctx context.Context, path string, fn contract.TransactionFunc) (any, error) {
	loc, err := locate(path)
	if err != nil {
		return nil, err
	}
	if loc.isCollection() {
		return nil, fmt.Errorf("%w: transactions are scoped to a document, got %q", errors.ErrInvalidPath, path)
	}

	var committed any
	err = s.retry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			doc, err := s.load(txn, loc.key())
			if err != nil {
				return err
			}
			next, err := fn(getIn(doc, loc.field))
			if err != nil {
				return abortError{err: err}
			}
			value, err := normalize(next, s.clock.stamp())
			if err != nil {
				return abortError{err: err}
			}
			if err = checkDocument(loc, value); err != nil {
				return abortError{err: err}
			}
			updated := setIn(doc, loc.field, value)
			committed = value
			if doc == nil && updated == nil {
				return nil
			}
			return s.write(txn, loc.key(), updated)
		})
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// Subscribe blocks until ctx is done. It delivers an initial snapshot of path,
// then a fresh snapshot after every commit touching it. Bursts of commits are
// coalesced: only the latest state is guaranteed to be delivered.
//
// badger registers subscribers asynchronously, so a TTL'd probe key is written
// until the subscription sees it; only then is the initial snapshot read.
// A commit can therefore never fall between the snapshot and the feed.
func (s *BadgerStore) Subscribe(ctx context.Context, path string, onChange func(value any)) error {
	loc, err := locate(path)
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	probeKey := []byte(probeCollection + "/" + uuid.NewString())
	ready := make(chan struct{})
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	var once sync.Once

	go func() {
		done <- s.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			relevant := false
			for _, kv := range kvs.Kv {
				switch {
				case bytes.Equal(kv.Key, probeKey):
					once.Do(func() { close(ready) })
				case loc.matches(string(kv.Key)):
					relevant = true
				}
			}
			if relevant {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
			return nil
		}, []pb.Match{{Prefix: loc.prefix()}, {Prefix: probeKey}})
	}()

	stop := func(err error) error {
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err = s.awaitRegistration(subCtx, probeKey, ready, done); err != nil {
		return stop(err)
	}

	emit := func() error {
		value, err := s.Get(subCtx, path)
		if err != nil {
			return err
		}
		onChange(value)
		return nil
	}

	if err = emit(); err != nil {
		return stop(err)
	}
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-changed:
			if err = emit(); err != nil {
				return stop(err)
			}
		case err = <-done:
			return stop(s.wrap(err))
		}
	}
}

func (s *BadgerStore) awaitRegistration(ctx context.Context, probeKey []byte, ready <-chan struct{}, done <-chan error) error {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		if err := s.writeProbe(probeKey); err != nil {
			return s.wrap(err)
		}
		select {
		case <-ready:
			_ = s.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(probeKey)
			})
			return nil
		case err := <-done:
			if err == nil {
				err = fmt.Errorf("subscription ended before registration")
			}
			return s.wrap(err)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *BadgerStore) writeProbe(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, []byte{1}).WithTTL(probeTTL))
	})
}

func (s *BadgerStore) load(txn *badger.Txn, key []byte) (map[string]any, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	err = item.Value(func(val []byte) error {
		doc, err = decodeDocument(val)
		return err
	})
	return doc, err
}

func (s *BadgerStore) scan(txn *badger.Txn, loc location) (map[string]any, error) {
	docs := make(map[string]any)
	prefix := loc.prefix()
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := docID(item.Key(), loc.collection)
		err := item.Value(func(val []byte) error {
			doc, err := decodeDocument(val)
			if err != nil {
				return err
			}
			docs[id] = doc
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *BadgerStore) write(txn *badger.Txn, key []byte, doc map[string]any) error {
	if doc == nil {
		return txn.Delete(key)
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) retry(ctx context.Context, commit func() error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := commit()
		if err == nil {
			return nil
		}
		var abort abortError
		switch {
		case errors.As(err, &abort):
			return abort.err
		case stderrors.Is(err, badger.ErrConflict):
			if attempt >= s.maxAttempts {
				return fmt.Errorf("%w: stale write after %d attempts", errors.ErrConflict, attempt)
			}
			s.log.Debug("Commit conflict, retrying", "attempt", attempt)
		default:
			return s.wrap(err)
		}
	}
}

// wrap classifies badger failures as retryable store errors, leaving
// validation and cancellation errors untouched.
func (s *BadgerStore) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrValidation),
		errors.Is(err, errors.ErrStoreUnavailable),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
}

// abortError carries an error raised by a TransactionFunc through db.Update
// so it is returned as-is instead of being retried or wrapped.
type abortError struct {
	err error
}

func (a abortError) Error() string {
	return a.err.Error()
}

func checkDocument(loc location, value any) error {
	if len(loc.field) > 0 || value == nil {
		return nil
	}
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("%w: document %s must be an object, got %T", errors.ErrUnsupportedValue, loc.doc, value)
	}
	return nil
}

// pendingDocs buffers the documents a multi-path update touches so each is
// read once, modified in memory, and written once at the end.
type pendingDocs struct {
	store   *BadgerStore
	txn     *badger.Txn
	docs    map[string]map[string]any
	existed map[string]bool
}

func newPendingDocs(store *BadgerStore, txn *badger.Txn) *pendingDocs {
	return &pendingDocs{
		store:   store,
		txn:     txn,
		docs:    make(map[string]map[string]any),
		existed: make(map[string]bool),
	}
}

func (p *pendingDocs) get(key string) (map[string]any, error) {
	if doc, ok := p.docs[key]; ok {
		return doc, nil
	}
	doc, err := p.store.load(p.txn, []byte(key))
	if err != nil {
		return nil, err
	}
	p.docs[key] = doc
	p.existed[key] = doc != nil
	return doc, nil
}

func (p *pendingDocs) put(key string, doc map[string]any) {
	p.docs[key] = doc
}

// replaceCollection overwrites a whole collection: documents missing from
// value are deleted.
func (p *pendingDocs) replaceCollection(loc location, value any) error {
	docs, ok := value.(map[string]any)
	if value != nil && !ok {
		return fmt.Errorf("%w: collection %s must be an object, got %T", errors.ErrUnsupportedValue, loc.collection, value)
	}
	existing, err := p.store.scan(p.txn, loc)
	if err != nil {
		return err
	}
	for id := range existing {
		key := loc.collection + "/" + id
		if _, err = p.get(key); err != nil {
			return err
		}
		p.put(key, nil)
	}
	for id, v := range docs {
		doc, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: document %s/%s must be an object", errors.ErrUnsupportedValue, loc.collection, id)
		}
		key := loc.collection + "/" + id
		if _, err = p.get(key); err != nil {
			return err
		}
		p.put(key, doc)
	}
	return nil
}

func (p *pendingDocs) flush() error {
	for key, doc := range p.docs {
		if doc == nil && !p.existed[key] {
			continue
		}
		if err := p.store.write(p.txn, []byte(key), doc); err != nil {
			return err
		}
	}
	return nil
}
