package scene

import (
	"fmt"
	"sync"
)

// HookFunc runs once per step with the external time delta in seconds. Hooks run
// inside the mutation-safe window and may touch the engine directly.
type HookFunc func(dt float64)

// HookID identifies a registered hook for later removal.
type HookID uint64

type hookEntry struct {
	id   HookID
	name string
	fn   HookFunc
}

// hookList is an ordered registry. Registration is safe from any goroutine; a
// hook added while the list runs is first invoked on the next step.
type hookList struct {
	mu      sync.Mutex
	next    HookID
	entries []hookEntry
}

func (l *hookList) add(name string, fn HookFunc) HookID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.entries = append(l.entries, hookEntry{id: l.next, name: name, fn: fn})
	return l.next
}

func (l *hookList) remove(id HookID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *hookList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// run invokes every hook in registration order. A panicking hook is reported
// through onPanic and the remaining hooks still run.
func (l *hookList) run(dt float64, onPanic func(name string, err error)) {
	l.mu.Lock()
	entries := append([]hookEntry(nil), l.entries...)
	l.mu.Unlock()
	for _, entry := range entries {
		invokeHook(entry, dt, onPanic)
	}
}

func invokeHook(entry hookEntry, dt float64, onPanic func(name string, err error)) {
	defer func() {
		if recovered := recover(); recovered != nil && onPanic != nil {
			onPanic(entry.name, fmt.Errorf("panic: %v", recovered))
		}
	}()
	entry.fn(dt)
}
