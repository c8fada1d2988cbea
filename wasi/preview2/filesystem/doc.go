// Package filesystem implements wasi:filesystem/preopens and a read-only
// subset of wasi:filesystem/types.
//
// The guest sees only the directories granted with Config.WithPreopen.
// Every path is resolved through an os.Root, so symlinks and ".." cannot
// leave the granted directory. Writes and creation fail with read-only.
package filesystem
