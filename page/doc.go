// Package page provides the page managers a vector file is built on.
//
// A [Manager] hands out fixed-size pages numbered from 0. Every change
// (allocation, dirty page, structural clear) is pending until FlushAll commits
// it or RecoverAll discards it, so a caller aborting its transaction only has
// to call RecoverAll.
//
// # Implementations
//
//   - [MemoryManager]: committed image in memory; fault injection for tests
//   - [FileManager]: one file per store, optional LRU read cache, resident
//     memory and flush IO governed by a resource controller
//   - [MappedManager]: read-only, zero-copy view of a committed store file
//
// # Usage
//
//	mgr, err := page.NewFileManager("data/docs.vf", page.FileOptions{
//	    PageSize:       4096,
//	    ReadCacheBytes: 1 << 20,
//	})
//	if err != nil { ... }
//	defer mgr.Close()
//
// Managers guard their own state with a mutex. Handles are not shared between
// goroutines.
package page
