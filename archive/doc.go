// Package archive implements the portable backup format for vector file
// stores.
//
// An archive is a 32-byte header followed by frames. Each frame holds up to
// FramePages consecutive pages, compressed with LZ4 or ZSTD (or stored) and
// protected by a CRC32 of its uncompressed bytes.
//
//	w, _ := archive.NewWriter(blob, archive.Header{
//	    Compression: archive.CompressionZSTD,
//	    PageSize:    4096,
//	    PageCount:   n,
//	})
//	frames, _ := archive.EncodeFrames(ctx, rc, batch, archive.CompressionZSTD)
//	for _, f := range frames {
//	    _ = w.WriteFrame(f)
//	}
package archive
