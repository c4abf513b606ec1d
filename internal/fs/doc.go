// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open page file with positional read/write, sync and truncate
//   - [FileSystem]: open, remove, rename, stat and mkdir
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Tests can inject [FaultyFS] into a page manager to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("store.vf", fs.Fault{FailAfterBytes: 0})
//	mgr, _ := page.NewFileManager(path, page.FileOptions{FS: ffs})
//
// This package intentionally does NOT include context.Context parameters.
// Local file operations are non-interruptible at the syscall level.
package fs
