//go:build cgo

// Command libmathutils is the C shared library build of mathutils:
//
//	go build -buildmode=c-shared -o libmathutils.so ./cmd/libmathutils
//
// It exports add and multiply as int32_t (int32_t, int32_t) functions.
package main

/*
#include <stdint.h>
*/
import "C"

import "github.com/lacquerai/mathutils/internal/arith"

//export add
func add(a, b C.int32_t) C.int32_t {
	return C.int32_t(arith.Add(int32(a), int32(b)))
}

//export multiply
func multiply(a, b C.int32_t) C.int32_t {
	return C.int32_t(arith.Multiply(int32(a), int32(b)))
}

// main is required for -buildmode=c-shared and never runs.
func main() {}
