package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type playlistItemRequest struct {
	Snippet playlistItemSnippet `json:"snippet"`
}

type playlistItemSnippet struct {
	PlaylistID string             `json:"playlistId"`
	ResourceID playlistResourceID `json:"resourceId"`
}

type playlistResourceID struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

// AddToPlaylist appends an uploaded video to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, videoID, playlistID string) error {
	c.logger.Info("adding video to playlist",
		slog.String("video_id", videoID),
		slog.String("playlist_id", playlistID),
	)

	body := playlistItemRequest{
		Snippet: playlistItemSnippet{
			PlaylistID: playlistID,
			ResourceID: playlistResourceID{
				Kind:    "youtube#video",
				VideoID: videoID,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("youtube: marshaling playlist item: %w", err)
	}

	url := c.baseURL + "/playlistItems?part=snippet"

	resp, err := c.do(ctx, http.MethodPost, url, "application/json; charset=UTF-8", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	return drain(resp)
}
