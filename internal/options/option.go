// Package options exposes typed, reloadable plugin options backed by the
// wfplug config file.
package options

import (
	"reflect"
	"sync"
)

// Option is a typed view of one config value. Plugins read it with Value and
// may override it; a locked option ignores config reloads until unlocked.
type Option[T any] struct {
	name  string
	parse func(interface{}) (T, error)

	mu        sync.RWMutex
	value     T
	locked    bool
	callbacks []func(T)
}

func newOption[T any](name string, parse func(interface{}) (T, error)) *Option[T] {
	return &Option[T]{name: name, parse: parse}
}

// Name returns the "<section>/<name>" key
func (o *Option[T]) Name() string {
	return o.name
}

// Value returns the current value
func (o *Option[T]) Value() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// SetValue replaces the value, notifying listeners if it changed
func (o *Option[T]) SetValue(v T) {
	o.set(v)
}

// SetLocked pins the current value against config reloads
func (o *Option[T]) SetLocked() {
	o.mu.Lock()
	o.locked = true
	o.mu.Unlock()
}

// Unlock lets the next reload replace the value again
func (o *Option[T]) Unlock() {
	o.mu.Lock()
	o.locked = false
	o.mu.Unlock()
}

// Locked reports whether reloads are ignored
func (o *Option[T]) Locked() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.locked
}

// OnChanged registers fn to run after every value change
func (o *Option[T]) OnChanged(fn func(T)) {
	o.mu.Lock()
	o.callbacks = append(o.callbacks, fn)
	o.mu.Unlock()
}

// load applies a raw config value unless the option is locked
func (o *Option[T]) load(raw interface{}) error {
	v, err := o.parse(raw)
	if err != nil {
		return err
	}

	o.mu.RLock()
	locked := o.locked
	o.mu.RUnlock()
	if locked {
		return nil
	}

	o.set(v)
	return nil
}

func (o *Option[T]) set(v T) {
	o.mu.Lock()
	changed := !reflect.DeepEqual(o.value, v)
	o.value = v
	callbacks := make([]func(T), len(o.callbacks))
	copy(callbacks, o.callbacks)
	o.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range callbacks {
		fn(v)
	}
}
