package rate

import (
	"context"
	"io"
	"sync/atomic"
)

// RateLimitedReader is an io.ReadCloser adapter that also reports how
// many bytes have actually been delivered so far, letting a caller that
// knows the expected total (e.g. a GridFS file's recorded length) detect
// a short read by comparing BytesRead with it once reading is done; Close
// itself does not check the count.
type RateLimitedReader interface {
	io.ReadCloser
	BytesRead() int64
}

type rlReader struct {
	ctx       context.Context
	rc        io.ReadCloser
	lim       *Limiter
	bytesRead atomic.Int64
}

// Read implements io.Reader with rate limiting.
//
// Note on token reservation: This method acquires tokens equal to the requested
// read size (capped at burst) before performing the read. If the underlying
// reader returns fewer bytes than requested, those tokens are still consumed.
// This design prioritizes rate limit guarantees over precision—post-read token
// acquisition would be more accurate but could allow burst violations. For most
// use cases, this over-reservation is acceptable and prevents gaming the rate
// limiter with small reads.
func (r *rlReader) Read(p []byte) (int, error) {
	// Safe to cast: burst is validated to fit in int during limiter creation
	burstSize := int(r.lim.burst)
	chunk := len(p)
	if chunk > burstSize {
		chunk = burstSize
	}
	err := r.lim.WaitN(r.ctx, chunk)
	if err != nil {
		return 0, err
	}
	n, err := r.rc.Read(p[:chunk])
	r.bytesRead.Add(int64(n))
	return n, err
}

// BytesRead reports the total number of bytes delivered through Read so
// far.
func (r *rlReader) BytesRead() int64 {
	return r.bytesRead.Load()
}

func (r *rlReader) Close() error {
	r.lim.SetInUse(false)
	return r.rc.Close()
}
