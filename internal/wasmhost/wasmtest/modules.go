// Package wasmtest provides minimal hand-assembled WebAssembly modules for
// tests that need a real module without a wasm toolchain.
package wasmtest

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Arith exports add and multiply, both (i32, i32) -> i32.
var Arith = concat(header,
	// type section: (i32, i32) -> i32
	[]byte{0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f},
	// function section: two functions of type 0
	[]byte{0x03, 0x03, 0x02, 0x00, 0x00},
	// export section: "add" -> 0, "multiply" -> 1
	[]byte{0x07, 0x12, 0x02,
		0x03, 'a', 'd', 'd', 0x00, 0x00,
		0x08, 'm', 'u', 'l', 't', 'i', 'p', 'l', 'y', 0x00, 0x01},
	// code section: local.get 0, local.get 1, i32.add / i32.mul
	[]byte{0x0a, 0x11, 0x02,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
		0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6c, 0x0b},
)

// AddOnly exports add but not multiply.
var AddOnly = concat(header,
	[]byte{0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f},
	[]byte{0x03, 0x02, 0x01, 0x00},
	[]byte{0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00},
	[]byte{0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b},
)

// Command exports an empty _start and nothing else.
var Command = concat(header,
	[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
	[]byte{0x03, 0x02, 0x01, 0x00},
	[]byte{0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
	[]byte{0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b},
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
