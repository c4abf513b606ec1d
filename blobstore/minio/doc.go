// Package minio provides a BlobStore for store archives on MinIO and other
// S3-compatible object stores (Ceph, Garage, SeaweedFS).
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false, "backups", "archives/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = vf.Backup(ctx, store, "docs.vfa")
//
// Use NewStore to reuse a configured *minio.Client.
package minio
