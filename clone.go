// clone.go: Defensive copies of cached values
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import "reflect"

// Cloner is implemented by values that know how to deep copy themselves.
// Values that do not implement it are copied structurally; they must be
// acyclic and keep no state in unexported reference fields.
type Cloner interface {
	Clone() any
}

// cloneValue returns a structurally independent copy of v.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone()
	}
	return deepCopyValue(reflect.ValueOf(v)).Interface()
}

func deepCopyValue(src reflect.Value) reflect.Value {
	switch src.Kind() {
	case reflect.Ptr:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		if c, ok := src.Interface().(Cloner); ok {
			cp := reflect.ValueOf(c.Clone())
			if cp.IsValid() && cp.Type().AssignableTo(src.Type()) {
				return cp
			}
		}
		dst := reflect.New(src.Elem().Type())
		dst.Elem().Set(deepCopyValue(src.Elem()))
		return dst

	case reflect.Interface:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.New(src.Type()).Elem()
		dst.Set(deepCopyValue(src.Elem()))
		return dst

	case reflect.Map:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			dst.SetMapIndex(iter.Key(), deepCopyValue(iter.Value()))
		}
		return dst

	case reflect.Slice:
		if src.IsNil() {
			return reflect.Zero(src.Type())
		}
		dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			dst.Index(i).Set(deepCopyValue(src.Index(i)))
		}
		return dst

	case reflect.Array:
		dst := reflect.New(src.Type()).Elem()
		for i := 0; i < src.Len(); i++ {
			dst.Index(i).Set(deepCopyValue(src.Index(i)))
		}
		return dst

	case reflect.Struct:
		dst := reflect.New(src.Type()).Elem()
		dst.Set(src)
		for i := 0; i < src.NumField(); i++ {
			if field := dst.Field(i); field.CanSet() {
				field.Set(deepCopyValue(src.Field(i)))
			}
		}
		return dst

	default:
		return src
	}
}
