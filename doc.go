// Package vecfile provides a paged sparse array of fixed-size values keyed by
// uint32.
//
// A VectorFile lays its values out on the pages of a page.Manager: page 0
// holds a checksummed header, and key k occupies slot k%ElementsPerPage of
// data page k/ElementsPerPage+1. Empty slots are filled with 0xFF bytes, so a
// stored value must not begin with the word 0xFFFFFFFF.
//
// # Quick Start
//
//	ctx := context.Background()
//	mgr, _ := page.NewFileManager("./docs.vf", page.FileOptions{PageSize: 4096})
//	vf, _ := vecfile.Create(ctx, mgr, 16)   // 16-byte values
//	vf, _ := vecfile.Open(ctx, mgr)         // re-open existing
//
//	_ = vf.Insert(ctx, 7, value)
//	v, ok, _ := vf.Find(ctx, 7)
//
//	for it := vf.Begin(ctx); it.Valid(); it.Next(ctx) {
//	    fmt.Println(it.Key(), it.Value())
//	}
//
// # Durability Model
//
// Every change is pending until it is committed or discarded:
//
//	vf.Insert(ctx, k, v)       // pending
//	vf.FlushAllPages(ctx)      // committed
//	vf.RecoverAllPages(ctx)    // drops everything since the last flush
//
// Growing the store by many pages commits intermediate states every flush
// interval (see WithFlushInterval). Expand always commits.
//
// # Managers
//
//   - page.MemoryManager: in-memory, with fault injection for tests
//   - page.FileManager: a single file, written with pwrite and fsync
//   - page.MappedManager: read-only, zero-copy over mmap
//
// # Backups
//
// Backup writes a compressed archive (LZ4 or ZSTD frames) of every committed
// page to a blobstore.BlobStore: a local directory, MinIO or Amazon S3.
// Restore rebuilds a store from such an archive.
package vecfile
