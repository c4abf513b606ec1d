package archive

import (
	"context"

	"github.com/hupe1980/vecfile/resource"
	"golang.org/x/sync/errgroup"
)

// EncodeFrames compresses frames concurrently and returns the encoded frames
// in input order. Concurrency is bounded by the controller's background
// worker slots; a nil controller runs one frame at a time.
func EncodeFrames(ctx context.Context, rc *resource.Controller, frames [][]byte, c Compression) ([][]byte, error) {
	out := make([][]byte, len(frames))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.Workers())

	for i, data := range frames {
		g.Go(func() error {
			if err := rc.AcquireBackground(ctx); err != nil {
				return err
			}
			defer rc.ReleaseBackground()

			enc, err := EncodeFrame(data, c)
			if err != nil {
				return err
			}
			out[i] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
