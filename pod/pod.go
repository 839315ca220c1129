// Package pod copies plain-old-data structs between target memory and Go values.
//
// Field layout is Go's native layout, which matches C on the same architecture as long
// as padding is spelled out. Fields may carry a `pod` tag:
//
//	valid_pointer[,required][,err_failure]  a uint64 or a Go pointer holding a target address
//	char_array                              a byte array cleared after its first NUL
package pod

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"gomemscan/process"
)

var (
	ErrNotPOD    = errors.New("type contains pointers")
	ErrNotStruct = errors.New("target must be a non-nil pointer to a struct")
)

func SizeOf[T any]() process.ProcessMemorySize {
	var t T
	return process.ProcessMemorySize(unsafe.Sizeof(t))
}

// ReadT reads a T at addr. Invalid valid_pointer fields are zeroed and char_array
// fields are cleaned after their terminator.
func ReadT[T any](p process.Process, addr process.ProcessMemoryAddress) (T, error) {
	var zero T
	if typeHasPointers(reflect.TypeOf(zero)) {
		return zero, fmt.Errorf("ReadT %T: %w", zero, ErrNotPOD)
	}

	size := SizeOf[T]()
	if size == 0 {
		return zero, errors.New("ReadT: size of T is zero")
	}

	data, err := readFull(p, addr, size)
	if err != nil {
		return zero, err
	}

	var v T
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), size), data)
	clean(p, reflect.ValueOf(&v).Elem())
	return v, nil
}

// ReadSliceT reads count consecutive values of T in one transfer.
func ReadSliceT[T any](p process.Process, addr process.ProcessMemoryAddress, count int) ([]T, error) {
	if count < 0 {
		return nil, errors.New("ReadSliceT: count must not be negative")
	}

	size := SizeOf[T]()
	if count == 0 || size == 0 {
		return []T{}, nil
	}
	var zero T
	if typeHasPointers(reflect.TypeOf(zero)) {
		return nil, fmt.Errorf("ReadSliceT %T: %w", zero, ErrNotPOD)
	}

	data, err := readFull(p, addr, size*process.ProcessMemorySize(count))
	if err != nil {
		return nil, err
	}

	out := make([]T, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), len(data)), data)
	for i := range out {
		clean(p, reflect.ValueOf(&out[i]).Elem())
	}
	return out, nil
}

// WriteT writes the in-memory bytes of v at addr.
func WriteT[T any](p process.Process, addr process.ProcessMemoryAddress, v T) (int, error) {
	if typeHasPointers(reflect.TypeOf(v)) {
		return 0, fmt.Errorf("WriteT %T: %w", v, ErrNotPOD)
	}
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return 0, nil
	}
	return process.WriteMemory(p, addr, unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
}

// ReadPointerList reads count pointers of the target's width at addr and returns the
// ones that point into readable memory.
func ReadPointerList(p process.Process, addr process.ProcessMemoryAddress, count int) ([]process.ProcessMemoryAddress, error) {
	width := process.PointerWidth(p)

	data, err := process.ReadMemory(p, addr, process.ProcessMemorySize(count*width))
	if err != nil {
		return nil, fmt.Errorf("ReadPointerList: failed to read at %s: %w", addr.ToString(), err)
	}

	var results []process.ProcessMemoryAddress
	for off := 0; off+width <= len(data); off += width {
		ptr := decodePointer(data[off : off+width])
		if ValidAddress(p, ptr) {
			results = append(results, ptr)
		}
	}
	return results, nil
}

// ValidAddress reports whether addr lies in committed, readable memory.
func ValidAddress(p process.Process, addr process.ProcessMemoryAddress) bool {
	if addr == 0 {
		return false
	}
	region, err := p.QueryRegion(addr)
	if err != nil {
		return false
	}
	return region.Contains(addr) && region.IsBacked() && region.Protect.IsReadable()
}

// ReadStruct fills the struct v points to from addr, field by field. Unlike ReadT it
// accepts Go pointer fields: a pointer tagged valid_pointer is followed and the
// pointee read recursively, any other pointer is left nil.
func ReadStruct(p process.Process, addr process.ProcessMemoryAddress, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStruct
	}
	return readStruct(p, addr, rv.Elem(), 0)
}

// maxDepth bounds valid_pointer chains, which may be cyclic in the target.
const maxDepth = 8

func readStruct(p process.Process, addr process.ProcessMemoryAddress, elem reflect.Value, depth int) error {
	st := elem.Type()
	data, err := readFull(p, addr, process.ProcessMemorySize(st.Size()))
	if err != nil {
		return fmt.Errorf("failed to read %s at %s: %w", st.Name(), addr.ToString(), err)
	}

	for i := 0; i < st.NumField(); i++ {
		field := elem.Field(i)
		sf := st.Field(i)
		if !field.CanSet() {
			continue
		}
		raw := data[sf.Offset : sf.Offset+sf.Type.Size()]
		tags := parseTags(sf.Tag.Get("pod"))

		switch field.Kind() {
		case reflect.Ptr:
			if tags["type"] != "valid_pointer" || depth >= maxDepth {
				continue
			}
			target := decodePointer(raw)
			switch {
			case target == 0:
				if tags["required"] == "true" && tags["err_failure"] == "true" {
					return fmt.Errorf("required pointer field %s is NULL", sf.Name)
				}
				continue
			case !ValidAddress(p, target):
				if tags["err_failure"] == "true" {
					return fmt.Errorf("invalid pointer %s in field %s", target.ToString(), sf.Name)
				}
				continue
			}
			if sf.Type.Elem().Kind() != reflect.Struct {
				continue
			}
			obj := reflect.New(sf.Type.Elem())
			if err := readStruct(p, target, obj.Elem(), depth+1); err != nil {
				if tags["err_failure"] == "true" {
					return fmt.Errorf("failed to read field %s: %w", sf.Name, err)
				}
				continue
			}
			field.Set(obj)
		case reflect.Struct:
			if err := readStruct(p, addr+process.ProcessMemoryAddress(sf.Offset), field, depth); err != nil {
				return err
			}
		default:
			if typeHasPointers(sf.Type) {
				continue
			}
			copy(unsafe.Slice((*byte)(unsafe.Pointer(field.UnsafeAddr())), len(raw)), raw)
			cleanField(p, field, tags)
		}
	}
	return nil
}

func readFull(p process.Process, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	data, err := process.ReadMemory(p, addr, size)
	if err != nil {
		return nil, err
	}
	if process.ProcessMemorySize(len(data)) < size {
		return nil, &process.TransferError{Op: "read", Address: addr, Length: size, Err: process.ErrPartialTransfer}
	}
	return data, nil
}

func decodePointer(b []byte) process.ProcessMemoryAddress {
	if len(b) == 4 {
		return process.ProcessMemoryAddress(binary.LittleEndian.Uint32(b))
	}
	return process.ProcessMemoryAddress(binary.LittleEndian.Uint64(b))
}

func typeHasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// clean applies the field tags of a struct value, recursing into nested structs.
func clean(p process.Process, v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			clean(p, field)
			continue
		}
		cleanField(p, field, parseTags(t.Field(i).Tag.Get("pod")))
	}
}

func cleanField(p process.Process, field reflect.Value, tags map[string]string) {
	switch tags["type"] {
	case "valid_pointer":
		if field.Kind() == reflect.Uint64 && field.CanSet() && !ValidAddress(p, process.ProcessMemoryAddress(field.Uint())) {
			field.SetUint(0)
		}
	case "char_array":
		if field.Kind() != reflect.Array || field.Type().Elem().Kind() != reflect.Uint8 || !field.CanSet() {
			return
		}
		terminated := false
		for i := 0; i < field.Len(); i++ {
			if terminated {
				field.Index(i).SetUint(0)
			} else if field.Index(i).Uint() == 0 {
				terminated = true
			}
		}
	}
}

// parseTags splits "valid_pointer,required,key=value" into a map. The first element
// is stored under "type".
func parseTags(tag string) map[string]string {
	tags := make(map[string]string)
	if tag == "" {
		return tags
	}

	parts := strings.Split(tag, ",")
	tags["type"] = parts[0]
	for _, part := range parts[1:] {
		if k, v, ok := strings.Cut(part, "="); ok {
			tags[k] = v
		} else {
			tags[part] = "true"
		}
	}
	return tags
}

// CString returns the bytes of a char_array up to the first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
