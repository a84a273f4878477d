// Package transfer implements the resumable transfer engine: chunk
// planning, the upload session state machine, and the on-disk resume
// journal.
package transfer

import (
	"fmt"

	"ytup/internal/youtube"
)

// DefaultChunkSize is used when configuration does not set one. 8 MiB keeps
// per-chunk retry cost reasonable while staying well above the service's
// 256 KiB alignment floor.
const DefaultChunkSize = 8 * 1024 * 1024

// Planner divides a file into sequential byte ranges and tracks the
// server-confirmed cursor. The cursor only moves through Advance with an
// offset the server reported, never through the client's own bookkeeping.
type Planner struct {
	total     int64
	chunkSize int64
	offset    int64
}

// NewPlanner creates a Planner for a file of total bytes. The chunk size
// must be positive and aligned to the service's 256 KiB boundary; zero
// selects the default.
func NewPlanner(total, chunkSize int64) (*Planner, error) {
	if total <= 0 {
		return nil, fmt.Errorf("transfer: file size must be positive, got %d", total)
	}

	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	if chunkSize < youtube.ChunkAlignment || chunkSize%youtube.ChunkAlignment != 0 {
		return nil, fmt.Errorf("transfer: chunk size %d must be a positive multiple of %d", chunkSize, int64(youtube.ChunkAlignment))
	}

	return &Planner{total: total, chunkSize: chunkSize}, nil
}

// Next returns the current byte range [offset, offset+length). It does not
// move the cursor: the same range is returned until Advance confirms
// progress, which is what makes a failed chunk re-readable. ok is false
// once the file is fully confirmed.
func (p *Planner) Next() (offset, length int64, ok bool) {
	if p.offset >= p.total {
		return 0, 0, false
	}

	length = p.chunkSize
	if remaining := p.total - p.offset; remaining < length {
		length = remaining
	}

	return p.offset, length, true
}

// Advance moves the cursor to the server-confirmed offset. The offset may
// equal the current cursor (no progress) but may never regress or exceed
// the file size.
func (p *Planner) Advance(confirmed int64) error {
	if confirmed < p.offset {
		return fmt.Errorf("transfer: server offset %d regressed below confirmed %d", confirmed, p.offset)
	}

	if confirmed > p.total {
		return fmt.Errorf("transfer: server offset %d exceeds file size %d", confirmed, p.total)
	}

	p.offset = confirmed

	return nil
}

// Offset returns the server-confirmed cursor. Idempotent; safe to query
// after a failure to know exactly where to resume.
func (p *Planner) Offset() int64 {
	return p.offset
}

// Done reports whether every byte has been confirmed.
func (p *Planner) Done() bool {
	return p.offset >= p.total
}

// Total returns the file size the planner covers.
func (p *Planner) Total() int64 {
	return p.total
}
