package guest

import "github.com/tetratelabs/wabin/wasm"

// HelloWorld is the world of the Hello guest.
const HelloWorld = `world hello-world {
  import name: func() -> string;
  import wasi:cli/stdout@0.2.0 {
    get-stdout: func() -> own<output-stream>;
  }
  import wasi:io/streams@0.2.0 {
    [method]output-stream.blocking-write-and-flush: func(self: borrow<output-stream>, contents: list<u8>) -> result<_, stream-error>;
    [resource-drop]output-stream: func(self: own<output-stream>);
  }
  export greet: func();
}
`

// heapBase is where the bump allocator starts handing out memory.
const heapBase = 8192

// realloc is a bump allocator: cabi_realloc(old_ptr, old_size, align,
// new_size) -> ptr. Global 0 holds the heap top.
func realloc() Func {
	body := new(Code).
		GlobalGet(0).LocalGet(2).I32Add().I32Const(1).I32Sub().
		I32Const(0).LocalGet(2).I32Sub().
		I32And().LocalTee(4).
		LocalGet(3).I32Add().GlobalSet(0).
		LocalGet(4).
		Body()
	return Func{
		Export: "cabi_realloc",
		Sig:    sig(params(i32, i32, i32, i32), i32),
		Locals: []wasm.ValueType{i32},
		Body:   body,
	}
}

// Hello calls name(), builds "Hello, <name>!\n" and writes it to stdout
// with blocking-write-and-flush. A failed write traps.
func Hello() []byte {
	const (
		fnName = iota
		fnGetStdout
		fnWrite
		fnDropStream
	)
	const (
		greeting = 16   // "Hello, "
		suffix   = 32   // "!\n"
		nameRet  = 64   // ptr, len of name()
		writeRet = 80   // result<_, stream-error>
		buffer   = 1024 // assembled message
	)

	greet := new(Code).
		I32Const(nameRet).Call(fnName).
		I32Const(nameRet).I32Load(4).LocalSet(0).
		I32Const(buffer).I32Const(greeting).I32Const(7).MemoryCopy().
		I32Const(buffer+7).I32Const(nameRet).I32Load(0).LocalGet(0).MemoryCopy().
		I32Const(buffer+7).LocalGet(0).I32Add().I32Const(suffix).I32Const(2).MemoryCopy().
		Call(fnGetStdout).LocalSet(1).
		LocalGet(1).I32Const(buffer).LocalGet(0).I32Const(9).I32Add().I32Const(writeRet).Call(fnWrite).
		I32Const(writeRet).I32Load8U(0).If().Unreachable().End().
		LocalGet(1).Call(fnDropStream).
		Body()

	m := &Module{
		World: HelloWorld,
		Imports: []Import{
			{Module: "$root", Name: "name", Sig: sig(params(i32))},
			{Module: "wasi:cli/stdout@0.2.0", Name: "get-stdout", Sig: sig(nil, i32)},
			{Module: "wasi:io/streams@0.2.0", Name: "[method]output-stream.blocking-write-and-flush", Sig: sig(params(i32, i32, i32, i32))},
			{Module: "wasi:io/streams@0.2.0", Name: "[resource-drop]output-stream", Sig: sig(params(i32))},
		},
		Funcs: []Func{
			{Export: "greet", Sig: sig(nil), Locals: []wasm.ValueType{i32, i32}, Body: greet},
			realloc(),
		},
		Data: []Data{
			{Offset: greeting, Bytes: []byte("Hello, ")},
			{Offset: suffix, Bytes: []byte("!\n")},
		},
		Globals:     []int32{heapBase},
		MemoryPages: 1,
	}
	return m.Encode()
}

// CalculatorWorld is the world of the Calculator guest.
const CalculatorWorld = `world calculator {
  export add: func(a: s32, b: s32) -> s32;
  export count: func() -> u32;
  export echo: func(s: string) -> string;
}
`

// Calculator exports pure arithmetic, a counter kept in a global and a
// string echo with a post-return hook.
func Calculator() []byte { return calculator().Encode() }

// CalculatorCore is the core module of Calculator.
func CalculatorCore() []byte { return calculator().Core() }

func calculator() *Module {
	const echoRet = 96

	add := new(Code).LocalGet(0).LocalGet(1).I32Add().Body()
	count := new(Code).
		GlobalGet(1).I32Const(1).I32Add().GlobalSet(1).
		GlobalGet(1).
		Body()
	echo := new(Code).
		I32Const(echoRet).LocalGet(0).I32Store(0).
		I32Const(echoRet).LocalGet(1).I32Store(4).
		I32Const(echoRet).
		Body()

	return &Module{
		World: CalculatorWorld,
		Funcs: []Func{
			{Export: "add", Sig: sig(params(i32, i32), i32), Body: add},
			{Export: "count", Sig: sig(nil, i32), Body: count},
			{Export: "echo", Sig: sig(params(i32, i32), i32), Body: echo},
			{Export: "cabi_post_echo", Sig: sig(params(i32)), Body: new(Code).Body()},
			realloc(),
		},
		Globals:     []int32{heapBase, 0},
		MemoryPages: 1,
	}
}

// OutOfBoundsWorld is the world of the OutOfBounds guest.
const OutOfBoundsWorld = `world out-of-bounds {
  export poke: func() -> u32;
  export answer: func() -> u32;
}
`

// OutOfBounds exports poke, which loads far past the end of memory, and
// answer, which returns 42.
func OutOfBounds() []byte { return outOfBounds().Encode() }

// OutOfBoundsCore is the core module of OutOfBounds.
func OutOfBoundsCore() []byte { return outOfBounds().Core() }

func outOfBounds() *Module {
	return &Module{
		World: OutOfBoundsWorld,
		Funcs: []Func{
			{Export: "poke", Sig: sig(nil, i32), Body: new(Code).I32Const(-16).I32Load(0).Body()},
			{Export: "answer", Sig: sig(nil, i32), Body: new(Code).I32Const(42).Body()},
		},
		MemoryPages: 1,
	}
}

// StartTrap has a start function that hits unreachable.
func StartTrap() []byte {
	start := uint32(1)
	m := &Module{
		World: `world start-trap { export answer: func() -> u32; }`,
		Funcs: []Func{
			{Export: "answer", Sig: sig(nil, i32), Body: new(Code).I32Const(42).Body()},
			{Sig: sig(nil), Body: new(Code).Unreachable().Body()},
		},
		Start: &start,
	}
	return m.Encode()
}

// Initialize exports _initialize, which sets global 0 to 7, and value,
// which returns it.
func Initialize() []byte {
	m := &Module{
		World: `world reactor { export value: func() -> u32; }`,
		Funcs: []Func{
			{Export: "_initialize", Sig: sig(nil), Body: new(Code).I32Const(7).GlobalSet(0).Body()},
			{Export: "value", Sig: sig(nil, i32), Body: new(Code).GlobalGet(0).Body()},
		},
		Globals: []int32{0},
	}
	return m.Encode()
}

// ExitWorld is the world of the Exit guest.
const ExitWorld = `world exiter {
  import wasi:cli/exit@0.2.0 {
    exit: func(status: result);
  }
  export succeed: func();
  export fail: func();
}
`

// Exit exports succeed and fail, which call wasi:cli/exit with ok and err.
// Code after the exit call traps, so returning from exit is observable.
func Exit() []byte {
	m := &Module{
		World: ExitWorld,
		Imports: []Import{
			{Module: "wasi:cli/exit@0.2.0", Name: "exit", Sig: sig(params(i32))},
		},
		Funcs: []Func{
			{Export: "succeed", Sig: sig(nil), Body: new(Code).I32Const(0).Call(0).Unreachable().Body()},
			{Export: "fail", Sig: sig(nil), Body: new(Code).I32Const(1).Call(0).Unreachable().Body()},
		},
	}
	return m.Encode()
}

// Spin exports spin, which never returns.
func Spin() []byte {
	m := &Module{
		World: `world spinner { export spin: func(); }`,
		Funcs: []Func{
			{Export: "spin", Sig: sig(nil), Body: new(Code).Loop().Br(0).End().Body()},
		},
	}
	return m.Encode()
}

// WriteThenTrapWorld is the world of the WriteThenTrap guest.
const WriteThenTrapWorld = `world write-then-trap {
  import wasi:cli/stdout@0.2.0 {
    get-stdout: func() -> own<output-stream>;
  }
  import wasi:io/streams@0.2.0 {
    [method]output-stream.blocking-write-and-flush: func(self: borrow<output-stream>, contents: list<u8>) -> result<_, stream-error>;
  }
  export run: func();
}
`

// WriteThenTrap exports run, which writes "abc" to stdout and then hits
// unreachable whether or not the write succeeded.
func WriteThenTrap() []byte {
	const (
		fnGetStdout = iota
		fnWrite
	)
	const (
		message  = 16
		writeRet = 32
	)

	run := new(Code).
		Call(fnGetStdout).
		I32Const(message).I32Const(3).I32Const(writeRet).Call(fnWrite).
		Unreachable().
		Body()

	m := &Module{
		World: WriteThenTrapWorld,
		Imports: []Import{
			{Module: "wasi:cli/stdout@0.2.0", Name: "get-stdout", Sig: sig(nil, i32)},
			{Module: "wasi:io/streams@0.2.0", Name: "[method]output-stream.blocking-write-and-flush", Sig: sig(params(i32, i32, i32, i32))},
		},
		Funcs: []Func{
			{Export: "run", Sig: sig(nil), Body: run},
		},
		Data:        []Data{{Offset: message, Bytes: []byte("abc")}},
		MemoryPages: 1,
	}
	return m.Encode()
}
