package component

import (
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/component/internal/token"
)

// preludeText declares the WASI 0.2 types hosts and guests share by name.
const preludeText = `
resource error;
resource input-stream;
resource output-stream;
resource pollable;
resource descriptor;
resource directory-entry-stream;
resource terminal-input;
resource terminal-output;

variant stream-error {
  last-operation-failed(own<error>),
  closed,
}

type filesize = u64;
type instant = u64;
type duration = u64;

record datetime {
  seconds: u64,
  nanoseconds: u32,
}

enum descriptor-type {
  unknown, block-device, character-device, directory, fifo,
  symbolic-link, regular-file, socket,
}

flags descriptor-flags {
  read, write, file-integrity-sync, data-integrity-sync,
  requested-write-sync, mutate-directory,
}

flags path-flags { symlink-follow }

flags open-flags { create, directory, exclusive, truncate }

record directory-entry {
  %type: descriptor-type,
  name: string,
}

enum error-code {
  access, would-block, already, bad-descriptor, busy, deadlock, quota,
  exist, file-too-large, illegal-byte-sequence, in-progress, interrupted,
  invalid, io, is-directory, loop, too-many-links, message-size,
  name-too-long, no-device, no-entry, no-lock, insufficient-memory,
  insufficient-space, not-directory, not-empty, not-recoverable,
  unsupported, no-tty, no-such-device, overflow, not-permitted, pipe,
  read-only, invalid-seek, text-file-busy, cross-device,
}
`

var prelude = sync.OnceValue(func() map[string]wit.Type {
	p := &parser{
		tokens: token.Tokenize(preludeText),
		scopes: []map[string]wit.Type{{}},
	}
	for p.peek() != nil {
		if err := p.parseTypeDecl(); err != nil {
			panic("component: invalid prelude: " + err.Error())
		}
	}
	return p.scopes[0]
})
