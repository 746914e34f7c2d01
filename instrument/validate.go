package instrument

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// StrictRange accepts values within [min, max].
func StrictRange[T constraints.Ordered](min, max T) func(T) error {
	return func(v T) error {
		if v < min || v > max {
			return errors.Errorf("value %v not in range [%v, %v]", v, min, max)
		}
		return nil
	}
}

// StrictDiscreteSet accepts the listed values only.
func StrictDiscreteSet[T comparable](values ...T) func(T) error {
	return func(v T) error {
		if !slices.Contains(values, v) {
			return errors.Errorf("value %v not in %v", v, values)
		}
		return nil
	}
}

// Mapping translates between the values of a control
// and the codes the instrument uses for them.
type Mapping[K, V comparable] struct {
	m map[K]V
}

func Mapped[K, V comparable](m map[K]V) *Mapping[K, V] {
	return &Mapping[K, V]{m: m}
}

func (mp *Mapping[K, V]) allowed() string {
	keys := make([]string, 0, len(mp.m))
	for _, k := range maps.Keys(mp.m) {
		keys = append(keys, fmt.Sprint(k))
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}

func (mp *Mapping[K, V]) Validate(k K) error {
	if _, ok := mp.m[k]; !ok {
		return errors.Errorf("value %v not in {%s}", k, mp.allowed())
	}
	return nil
}

func (mp *Mapping[K, V]) Format(k K) (interface{}, error) {
	v, ok := mp.m[k]
	if !ok {
		return nil, errors.Errorf("value %v not in {%s}", k, mp.allowed())
	}
	return v, nil
}

// Lookup returns the value that code v stands for.
func (mp *Mapping[K, V]) Lookup(v V) (k K, err error) {
	for key, val := range mp.m {
		if val == v {
			return key, nil
		}
	}
	err = errors.Errorf("unknown code %v", v)
	return
}

// Parser returns a parser that decodes a code using p
// and looks up the corresponding value.
func (mp *Mapping[K, V]) Parser(p func(string) (V, error)) func(string) (K, error) {
	return func(s string) (k K, err error) {
		v, err := p(s)
		if err != nil {
			return
		}
		return mp.Lookup(v)
	}
}
