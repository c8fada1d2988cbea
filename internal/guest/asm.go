package guest

import (
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
)

// Code assembles a function body one instruction at a time.
type Code struct {
	b []byte
}

// Body returns the encoded body terminated by end.
func (c *Code) Body() []byte {
	return append(c.b, wasm.OpcodeEnd)
}

func (c *Code) op(ops ...byte) *Code {
	c.b = append(c.b, ops...)
	return c
}

func (c *Code) u32(op byte, v uint32) *Code {
	c.b = append(c.b, op)
	c.b = append(c.b, leb128.EncodeUint32(v)...)
	return c
}

// memarg emits a load or store with natural alignment and an offset.
func (c *Code) memarg(op byte, alignLog2, offset uint32) *Code {
	c.b = append(c.b, op)
	c.b = append(c.b, leb128.EncodeUint32(alignLog2)...)
	c.b = append(c.b, leb128.EncodeUint32(offset)...)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(wasm.OpcodeUnreachable) }
func (c *Code) Drop() *Code        { return c.op(wasm.OpcodeDrop) }
func (c *Code) Return() *Code      { return c.op(wasm.OpcodeReturn) }
func (c *Code) End() *Code         { return c.op(wasm.OpcodeEnd) }
func (c *Code) Else() *Code        { return c.op(wasm.OpcodeElse) }

// If opens a block without results.
func (c *Code) If() *Code { return c.op(wasm.OpcodeIf, 0x40) }

// Loop opens a loop without results.
func (c *Code) Loop() *Code { return c.op(wasm.OpcodeLoop, 0x40) }

func (c *Code) Br(depth uint32) *Code { return c.u32(wasm.OpcodeBr, depth) }

func (c *Code) Call(fn uint32) *Code         { return c.u32(wasm.OpcodeCall, fn) }
func (c *Code) LocalGet(i uint32) *Code      { return c.u32(wasm.OpcodeLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code      { return c.u32(wasm.OpcodeLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code      { return c.u32(wasm.OpcodeLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code     { return c.u32(wasm.OpcodeGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code     { return c.u32(wasm.OpcodeGlobalSet, i) }
func (c *Code) I32Load(offset uint32) *Code  { return c.memarg(wasm.OpcodeI32Load, 2, offset) }
func (c *Code) I32Load8U(offset uint32) *Code {
	return c.memarg(wasm.OpcodeI32Load8U, 0, offset)
}
func (c *Code) I32Store(offset uint32) *Code { return c.memarg(wasm.OpcodeI32Store, 2, offset) }
func (c *Code) I32Store8(offset uint32) *Code {
	return c.memarg(wasm.OpcodeI32Store8, 0, offset)
}

func (c *Code) I32Const(v int32) *Code {
	c.b = append(c.b, wasm.OpcodeI32Const)
	c.b = append(c.b, leb128.EncodeInt32(v)...)
	return c
}

func (c *Code) I32Eqz() *Code { return c.op(wasm.OpcodeI32Eqz) }
func (c *Code) I32Add() *Code { return c.op(wasm.OpcodeI32Add) }
func (c *Code) I32Sub() *Code { return c.op(wasm.OpcodeI32Sub) }
func (c *Code) I32And() *Code { return c.op(wasm.OpcodeI32And) }
func (c *Code) I32Xor() *Code { return c.op(wasm.OpcodeI32Xor) }

// MemoryCopy copies within memory 0: [dst, src, n] -> [].
func (c *Code) MemoryCopy() *Code {
	c.b = append(c.b, wasm.OpcodeMiscPrefix)
	c.b = append(c.b, leb128.EncodeUint32(uint32(wasm.OpcodeMiscMemoryCopy))...)
	return c.op(0x00, 0x00)
}
