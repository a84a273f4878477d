package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
)

// thumbnailMaxSize is the service's limit for custom thumbnails (2 MB).
const thumbnailMaxSize = 2 * 1024 * 1024

// SetThumbnail uploads a custom thumbnail for a video. The image is sent in
// a single media upload request — thumbnails are small enough that chunking
// would be overhead.
func (c *Client) SetThumbnail(ctx context.Context, videoID string, image io.Reader, size int64, imagePath string) error {
	if size > thumbnailMaxSize {
		return fmt.Errorf("youtube: thumbnail %s exceeds %d byte limit (%d bytes)", imagePath, int64(thumbnailMaxSize), size)
	}

	c.logger.Info("uploading thumbnail",
		slog.String("video_id", videoID),
		slog.Int64("size", size),
	)

	contentType := mime.TypeByExtension(filepath.Ext(imagePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reqURL := fmt.Sprintf("%s/thumbnails/set?videoId=%s&uploadType=media", c.uploadBaseURL, url.QueryEscape(videoID))

	resp, err := c.do(ctx, http.MethodPost, reqURL, contentType, image)
	if err != nil {
		return err
	}

	return drain(resp)
}
