// Package badger stores archives in an embedded Badger key-value database.
//
// It suits deployments that already ship a Badger instance or want archives
// next to other local state without a directory of loose files:
//
//	store, err := badger.Open("/var/lib/vecfile/archives")
//	defer store.Close()
//	err = vf.Backup(ctx, store, "docs/2024-06-01.vfa")
//
// Blobs are split into chunks of DefaultChunkSize bytes. Open reads a whole
// blob from one snapshot.
package badger
