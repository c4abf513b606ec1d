package vecfile

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfile/internal/layout"
	"github.com/hupe1980/vecfile/page"
)

// Report is the result of Verify.
type Report struct {
	// Pages is the number of data pages scanned.
	Pages uint32
	// Keys holds every occupied key found.
	Keys *roaring.Bitmap
	// Header is the header as loaded.
	Header layout.Header
	// Problems lists every inconsistency found. Empty means the store is sound.
	Problems []string
}

// OK reports whether no problems were found.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Err returns an *ErrVerify for a report with problems, nil otherwise.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return &ErrVerify{Problems: r.Problems}
}

func (r *Report) addf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify scans every allocated data page and checks the header against what
// is stored: the count, the key bounds, the page bounds and the header
// checksum. Pending changes are included. Problems are reported, not
// returned as errors; the error is reserved for failures to read the store.
func (vf *VectorFile) Verify(ctx context.Context) (*Report, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	hdr := vf.hdr
	r := &Report{Keys: roaring.New(), Header: hdr}

	if _, err := layout.Decode(vf.hdrPage.Bytes()); err != nil {
		r.addf("header page does not decode: %v", err)
	}
	if hdr.MinAllocatedPage != 0 {
		r.addf("min allocated page is %d, want 0", hdr.MinAllocatedPage)
	}

	n, err := vf.mgr.PageCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("vecfile: verify: %w", err)
	}
	if page.ID(hdr.LastAllocatedPage) >= n {
		r.addf("last allocated page %d beyond %d pages", hdr.LastAllocatedPage, n)
		return r, nil
	}

	epp := hdr.ElementsPerPage
	for p := uint32(1); p <= hdr.LastAllocatedPage; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := vf.pages.Attach(ctx, page.ID(p)); err != nil {
			return nil, fmt.Errorf("vecfile: verify page %d: %w", p, err)
		}
		for k, last := layout.FirstKey(p, epp), layout.LastKey(p, epp); ; k++ {
			if layout.Occupied(vf.slot(k)) {
				r.Keys.Add(k)
			}
			if k == last {
				break
			}
		}
		r.Pages++
	}

	found := r.Keys.GetCardinality()
	if found != uint64(hdr.Count) {
		r.addf("header count is %d, found %d occupied slots", hdr.Count, found)
	}
	if found > 0 {
		if lo := r.Keys.Minimum(); lo < hdr.MinKey {
			r.addf("key %d below min key %d", lo, hdr.MinKey)
		}
		if hi := r.Keys.Maximum(); hi > hdr.MaxKey {
			r.addf("key %d above max key %d", hi, hdr.MaxKey)
		}
	}
	if !hdr.Empty() && layout.PageOf(hdr.MaxKey, epp) > hdr.LastAllocatedPage {
		r.addf("max key %d lies beyond last allocated page %d", hdr.MaxKey, hdr.LastAllocatedPage)
	}

	vf.opts.logger.LogVerify(ctx, r.Pages, uint32(found), len(r.Problems))
	return r, nil
}
