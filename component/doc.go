// Package component loads WebAssembly components.
//
// Load accepts two binary layouts. A component binary (preamble version
// 0x0d, layer 1) is decoded into its world, and the core module its
// exports are lifted from is extracted; lifts must use utf8 and the
// memory, cabi_realloc and cabi_post_ exports of that module. A core
// module may instead carry its world in a binary "component-type" custom
// section, as component embed tooling writes it. Imports the core module
// does not use are dropped from decoded worlds.
//
// WithWorld supplies the world as WIT text instead; that world is used as
// written. Load then compiles the core module with the engine and
// type-checks every declared import and export against the canonical ABI
// lowering of its WIT signature.
//
// Encode and Embed produce both layouts from a core module and a World.
//
// World-level function imports are bound under the core module "$root";
// interface imports under the interface name, e.g. "wasi:cli/stdout@0.2.0".
//
// The WIT text grammar covers primitive types, list, option, result, tuple,
// own and borrow handles, plus type, enum, flags, variant, record and
// resource declarations inside worlds and interfaces. WASI preview2 types
// such as stream-error, error-code and descriptor are predeclared.
package component
