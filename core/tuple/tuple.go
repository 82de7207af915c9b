// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tuple

import (
	"fmt"
	"math"
	"reflect"

	"github.com/juju/errors"
)

// Tuple is a single stream element. Key decides where the tuple is routed
// and Value is carried along untouched.
type Tuple struct {
	Key   any
	Value any
}

// New returns a tuple with the given key and value.
func New(key, value any) Tuple {
	return Tuple{Key: key, Value: value}
}

// Validate checks that the tuple can be routed. Keys must be non-nil and
// comparable, since routers use them as map keys. A key holding NaN never
// equals itself, so it is refused as well.
func (t Tuple) Validate() error {
	if t.Key == nil {
		return errors.NotValidf("nil tuple key")
	}
	if !reflect.TypeOf(t.Key).Comparable() {
		return errors.NotValidf("tuple key of type %T", t.Key)
	}
	if hasNaN(reflect.ValueOf(t.Key)) {
		return errors.NotValidf("tuple key %v holding NaN", t.Key)
	}
	return nil
}

func hasNaN(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return math.IsNaN(real(c)) || math.IsNaN(imag(c))
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if hasNaN(v.Field(i)) {
				return true
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if hasNaN(v.Index(i)) {
				return true
			}
		}
	case reflect.Interface:
		return !v.IsNil() && hasNaN(v.Elem())
	}
	return false
}

// SameKey reports whether two tuples are routing-equivalent. Tuples with
// invalid keys are never equivalent.
func (t Tuple) SameKey(other Tuple) bool {
	if t.Validate() != nil || other.Validate() != nil {
		return false
	}
	return t.Key == other.Key
}

// String implements fmt.Stringer.
func (t Tuple) String() string {
	return fmt.Sprintf("(%v, %v)", t.Key, t.Value)
}
