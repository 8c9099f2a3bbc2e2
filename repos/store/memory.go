package store

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/idgen"
)

// Memory is an in-process Store with realtime database semantics. It backs
// local development and the test suites.
type Memory struct {
	mu     sync.RWMutex
	root   any
	subs   map[int]*memorySubscription
	nextID int
	newKey func() string
}

type memorySubscription struct {
	path []string
	fn   func(Snapshot)
}

func NewMemory() *Memory {
	return &Memory{
		subs:   map[int]*memorySubscription{},
		newKey: idgen.NewKey,
	}
}

func (m *Memory) Read(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewSnapshot(JoinPath(path), lookup(m.root, SplitPath(path)))
}

func (m *Memory) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	segments := SplitPath(path)

	m.mu.Lock()
	m.root = assign(m.root, segments, v)
	var notify []*memorySubscription
	for _, sub := range m.subs {
		if related(sub.path, segments) {
			notify = append(notify, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range notify {
		m.deliver(sub)
	}
	return nil
}

func (m *Memory) Push(ctx context.Context, path string, value any) (string, error) {
	key := m.newKey()
	if err := m.Write(ctx, JoinPath(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySubscription{path: SplitPath(path), fn: fn}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)

	m.deliver(sub)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

func (m *Memory) deliver(sub *memorySubscription) {
	m.mu.RLock()
	snap, err := NewSnapshot(JoinPath(sub.path...), lookup(m.root, sub.path))
	m.mu.RUnlock()
	if err != nil {
		return
	}
	sub.fn(snap)
}

func lookup(node any, segments []string) any {
	for _, seg := range segments {
		switch t := node.(type) {
		case map[string]any:
			node = t[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil
			}
			node = t[i]
		default:
			return nil
		}
	}
	return node
}

// assign returns node with value set at segments, pruning emptied parents.
func assign(node any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}
	m, ok := node.(map[string]any)
	if !ok {
		if arr, isArr := node.([]any); isArr {
			m = arrayToMap(arr)
		} else {
			m = map[string]any{}
		}
	}
	child := assign(m[segments[0]], segments[1:], value)
	if child == nil {
		delete(m, segments[0])
	} else {
		m[segments[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func arrayToMap(arr []any) map[string]any {
	m := make(map[string]any, len(arr))
	for i, v := range arr {
		if v != nil {
			m[strconv.Itoa(i)] = v
		}
	}
	return m
}
