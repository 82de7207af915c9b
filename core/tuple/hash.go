// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tuple

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/juju/errors"
	"github.com/zeebo/xxh3"

	"github.com/juju/streamrouter/core/routing"
)

// MaxKey is the largest value in the partition domain. Hashes are 63-bit
// values in [0, MaxKey].
const MaxKey int64 = math.MaxInt64

// signMask clears the sign bit of a 64-bit hash.
const signMask = uint64(math.MaxInt64)

// Hashable is implemented by keys that supply their own routing hash.
// The returned value must lie in [0, MaxKey]; a negative value is a
// programming error and is reported as routing.ErrNegativeKeyHash.
type Hashable interface {
	RouteHash() int64
}

// Hasher maps a key into the partition domain.
type Hasher func(key any) (int64, error)

// HashKey is the default Hasher. It hashes a canonical encoding of the key
// with xxh3 and clears the sign bit, so the result always lies in
// [0, MaxKey].
func HashKey(key any) (int64, error) {
	if key == nil {
		return 0, errors.NotValidf("nil key")
	}
	if h, ok := key.(Hashable); ok {
		return CheckHash(h.RouteHash())
	}
	return int64(xxh3.Hash(encode(key)) & signMask), nil
}

// Hash hashes the tuple's key with HashKey.
func (t Tuple) Hash() (int64, error) {
	return HashKey(t.Key)
}

// CheckHash fails loudly if the value lies outside the partition domain.
func CheckHash(h int64) (int64, error) {
	if h < 0 {
		return 0, errors.Annotatef(routing.ErrNegativeKeyHash, "hash %d", h)
	}
	return h, nil
}

// encode produces a type-tagged byte encoding of the key so that, for
// example, the string "1" and the integer 1 hash differently. Keys that
// compare equal encode identically.
func encode(key any) []byte {
	var buf [9]byte
	switch k := key.(type) {
	case string:
		return append([]byte{'s'}, k...)
	case []byte:
		return append([]byte{'b'}, k...)
	case int:
		return encodeInt(buf[:], 'i', uint64(k))
	case int8:
		return encodeInt(buf[:], 'i', uint64(k))
	case int16:
		return encodeInt(buf[:], 'i', uint64(k))
	case int32:
		return encodeInt(buf[:], 'i', uint64(k))
	case int64:
		return encodeInt(buf[:], 'i', uint64(k))
	case uint:
		return encodeInt(buf[:], 'u', uint64(k))
	case uint8:
		return encodeInt(buf[:], 'u', uint64(k))
	case uint16:
		return encodeInt(buf[:], 'u', uint64(k))
	case uint32:
		return encodeInt(buf[:], 'u', uint64(k))
	case uint64:
		return encodeInt(buf[:], 'u', k)
	case float32:
		return appendFloat([]byte{'g'}, float64(k))
	case float64:
		return appendFloat([]byte{'d'}, k)
	case bool:
		if k {
			return []byte{'t'}
		}
		return []byte{'f'}
	case fmt.Stringer:
		return append([]byte{'S'}, k.String()...)
	}
	return appendValue([]byte(fmt.Sprintf("%T:", key)), reflect.ValueOf(key))
}

// appendValue encodes composite keys field by field, so that float
// fields follow the same rules as float keys.
func appendValue(b []byte, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return appendFloat(b, v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return appendFloat(appendFloat(b, real(c)), imag(c))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.BigEndian.AppendUint64(b, uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return binary.BigEndian.AppendUint64(b, v.Uint())
	case reflect.Bool:
		if v.Bool() {
			return append(b, 't')
		}
		return append(b, 'f')
	case reflect.String:
		b = binary.BigEndian.AppendUint64(b, uint64(v.Len()))
		return append(b, v.String()...)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			b = appendValue(b, v.Field(i))
		}
		return b
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			b = appendValue(b, v.Index(i))
		}
		return b
	case reflect.Interface:
		if v.IsNil() {
			return append(b, 'n')
		}
		b = append(b, v.Elem().Type().String()...)
		return appendValue(append(b, ':'), v.Elem())
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return binary.BigEndian.AppendUint64(b, uint64(v.Pointer()))
	}
	return append(b, fmt.Sprintf("%#v", v)...)
}

// appendFloat folds -0 into +0, since the two compare equal.
func appendFloat(b []byte, f float64) []byte {
	if f == 0 {
		f = 0
	}
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

func encodeInt(buf []byte, tag byte, v uint64) []byte {
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:], v)
	return buf
}
