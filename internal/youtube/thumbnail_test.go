package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThumbnail(t *testing.T) {
	var (
		gotPath  string
		gotQuery string
		gotType  string
		gotBody  string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")

		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(b)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	image := "fake jpeg bytes"

	err := c.SetThumbnail(context.Background(), "vid-42", strings.NewReader(image), int64(len(image)), "/pics/thumb.jpg")
	require.NoError(t, err)

	assert.Equal(t, "/thumbnails/set", gotPath)
	assert.Equal(t, "videoId=vid-42&uploadType=media", gotQuery)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, image, gotBody)
}

func TestSetThumbnail_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("oversize thumbnail must be rejected before any request")
	}))
	defer srv.Close()

	c := newTestClient(srv)

	err := c.SetThumbnail(context.Background(), "vid-42", strings.NewReader(""), thumbnailMaxSize+1, "/pics/huge.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestSetThumbnail_UnknownExtension(t *testing.T) {
	var gotType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	err := c.SetThumbnail(context.Background(), "vid-42", strings.NewReader("x"), 1, "/pics/thumb.bin")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", gotType)
}
