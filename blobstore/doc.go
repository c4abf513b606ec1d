// Package blobstore stores named, immutable blobs. vecfile uses it as the
// target of Backup and the source of Restore.
//
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in memory, for tests
//   - LocalStore: local directory, atomic rename on close, mmap reads
//   - minio.Store: MinIO and S3-compatible object stores
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - badger.Store: embedded Badger database, blobs split into chunks
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // open for reading
//	    Create(ctx, name) (WritableBlob, error)  // visible on Close
//	    Put(ctx, name, data) error               // atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Missing blobs are reported with an error satisfying
// errors.Is(err, ErrNotFound).
package blobstore
