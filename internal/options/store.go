package options

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrUnknownOption is returned for keys the config does not define
var ErrUnknownOption = errors.New("unknown option")

// Source provides raw config values by viper key. *viper.Viper satisfies it.
type Source interface {
	Get(key string) interface{}
}

// ListEntry is one row of a compound list option
type ListEntry struct {
	Name    string
	Binding ActivatorBinding
	Command string
	Type    string
}

type loader interface {
	load(raw interface{}) error
}

// Store hands out options and re-reads them on config reload
type Store struct {
	src Source

	mu      sync.Mutex
	options map[string]loader
	order   []string
}

// NewStore creates a store over src
func NewStore(src Source) *Store {
	return &Store{
		src:     src,
		options: make(map[string]loader),
	}
}

// NewViperStore creates a store over the global viper instance
func NewViperStore() *Store {
	return NewStore(viper.GetViper())
}

// Int returns the integer option name, e.g. "basic-example/int_option"
func (s *Store) Int(name string) (*Option[int], error) {
	return lookup(s, name, cast.ToIntE)
}

// Double returns a floating point option
func (s *Store) Double(name string) (*Option[float64], error) {
	return lookup(s, name, cast.ToFloat64E)
}

// Bool returns a boolean option
func (s *Store) Bool(name string) (*Option[bool], error) {
	return lookup(s, name, cast.ToBoolE)
}

// String returns a string option
func (s *Store) String(name string) (*Option[string], error) {
	return lookup(s, name, cast.ToStringE)
}

// Activator returns an activator binding option
func (s *Store) Activator(name string) (*Option[ActivatorBinding], error) {
	return lookup(s, name, parseActivatorValue)
}

// List returns a compound list option of name/binding/command/type rows
func (s *Store) List(name string) (*Option[[]ListEntry], error) {
	return lookup(s, name, parseList)
}

// Names returns the loaded option names in load order
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Reload re-reads every loaded option. Locked options keep their value.
func (s *Store) Reload() error {
	s.mu.Lock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	loaders := make([]loader, len(names))
	for i, name := range names {
		loaders[i] = s.options[name]
	}
	s.mu.Unlock()

	var errs []error
	for i, l := range loaders {
		if err := l.load(s.src.Get(viperKey(names[i]))); err != nil {
			logger.Warnf("Failed to reload option %s: %v", names[i], err)
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

func lookup[T any](s *Store, name string, parse func(interface{}) (T, error)) (*Option[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.options[name]; ok {
		opt, ok := existing.(*Option[T])
		if !ok {
			return nil, fmt.Errorf("option %s was already loaded with another type", name)
		}
		return opt, nil
	}

	raw := s.src.Get(viperKey(name))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}

	opt := newOption(name, parse)
	if err := opt.load(raw); err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", name, err)
	}

	s.options[name] = opt
	s.order = append(s.order, name)
	return opt, nil
}

// viperKey maps "section/name" to viper's "section.name"
func viperKey(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func parseActivatorValue(raw interface{}) (ActivatorBinding, error) {
	s, err := cast.ToStringE(raw)
	if err != nil {
		return ActivatorBinding{}, err
	}
	return ParseActivator(s)
}

func parseList(raw interface{}) ([]ListEntry, error) {
	var rows []struct {
		Name    string `mapstructure:"name"`
		Binding string `mapstructure:"binding"`
		Command string `mapstructure:"command"`
		Type    string `mapstructure:"type"`
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rows,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(rows))
	for _, row := range rows {
		binding, err := ParseActivator(row.Binding)
		if err != nil {
			return nil, fmt.Errorf("list entry %q: %w", row.Name, err)
		}
		entries = append(entries, ListEntry{
			Name:    row.Name,
			Binding: binding,
			Command: row.Command,
			Type:    row.Type,
		})
	}
	return entries, nil
}
