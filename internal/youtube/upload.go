package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// ChunkAlignment is the required alignment for upload chunk sizes (256 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 256 * 1024

// UploadSession is an open resumable upload. The URI is stable for the life
// of one upload attempt sequence and is what makes retries resume rather
// than restart from zero.
type UploadSession struct {
	URI   string
	Total int64
}

// ChunkResult is the server's answer to one chunk send or offset query.
type ChunkResult struct {
	// Done is true when the server has all bytes; Video is then populated.
	Done  bool
	Video *Video

	// NextOffset is the first byte the server has not durably received.
	// Valid only when Done is false.
	NextOffset int64
}

// CreateUploadSession opens a resumable upload session via videos.insert
// with uploadType=resumable. The session URI arrives in the Location header.
func (c *Client) CreateUploadSession(ctx context.Context, meta *Metadata, size int64, mimeType string) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("title", meta.Title),
		slog.Int64("size", size),
	)

	payload, err := json.Marshal(insertBody(meta))
	if err != nil {
		return nil, fmt.Errorf("youtube: marshaling video metadata: %w", err)
	}

	url := fmt.Sprintf("%s/videos?uploadType=resumable&part=%s", c.uploadBaseURL, insertParts(meta))

	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("youtube: creating initiation request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &requestError{op: "initiation", err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	uri := resp.Header.Get("Location")

	if drainErr := drain(resp); drainErr != nil {
		return nil, drainErr
	}

	if uri == "" {
		return nil, fmt.Errorf("youtube: initiation response missing Location header")
	}

	c.logger.Debug("upload session created")

	return &UploadSession{URI: uri, Total: size}, nil
}

// UploadChunk sends one byte range to the session URI. The server's answer
// is either completion (200/201 with the video resource), a partial accept
// (308 with the confirmed range), or an error. Unlike metadata calls, chunk
// sends are not paced — bandwidth, not quota, bounds them.
func (c *Client) UploadChunk(ctx context.Context, session *UploadSession, chunk io.Reader, offset, length int64) (*ChunkResult, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", session.Total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.URI, chunk)
	if err != nil {
		return nil, fmt.Errorf("youtube: creating chunk request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, session.Total))
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &requestError{op: "chunk upload", err: err}
	}

	return c.handleChunkResponse(resp)
}

// QueryOffset asks the session how many bytes it has durably received.
// Used after an ambiguous failure where the client cannot tell whether the
// last chunk landed. The empty-range form (bytes */total) makes the request
// a pure status probe.
func (c *Client) QueryOffset(ctx context.Context, session *UploadSession) (*ChunkResult, error) {
	c.logger.Info("querying upload session offset")

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.URI, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("youtube: creating offset query request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", session.Total))
	req.ContentLength = 0

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &requestError{op: "offset query", err: err}
	}

	return c.handleChunkResponse(resp)
}

// resumeIncomplete is the 308 status the upload frontend uses for
// partial accepts. net/http names it StatusPermanentRedirect; in the
// resumable protocol it means "resume incomplete".
const resumeIncomplete = 308

// handleChunkResponse interprets the server's answer to a chunk send or
// offset query.
func (c *Client) handleChunkResponse(resp *http.Response) (*ChunkResult, error) {
	switch resp.StatusCode {
	case resumeIncomplete:
		next, err := nextOffsetFromRange(resp.Header.Get("Range"))

		if drainErr := drain(resp); drainErr != nil {
			return nil, drainErr
		}

		if err != nil {
			return nil, err
		}

		c.logger.Debug("chunk partially accepted",
			slog.Int64("next_offset", next),
		)

		return &ChunkResult{NextOffset: next}, nil

	case http.StatusOK, http.StatusCreated:
		defer resp.Body.Close()

		var video Video
		if decErr := json.NewDecoder(resp.Body).Decode(&video); decErr != nil {
			return nil, fmt.Errorf("youtube: decoding final chunk response: %w", decErr)
		}

		if video.ID == "" {
			return nil, fmt.Errorf("youtube: upload completed without a video id")
		}

		c.logger.Debug("upload complete",
			slog.String("video_id", video.ID),
		)

		return &ChunkResult{Done: true, Video: &video}, nil

	default:
		return nil, c.errorFromResponse(resp)
	}
}

// nextOffsetFromRange parses a "Range: bytes=0-N" header into the next
// unreceived byte offset. An absent header means the server has nothing yet.
func nextOffsetFromRange(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("youtube: malformed Range header %q", header)
	}

	_, high, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, fmt.Errorf("youtube: malformed Range header %q", header)
	}

	last, err := strconv.ParseInt(high, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("youtube: malformed Range header %q: %w", header, err)
	}

	return last + 1, nil
}
