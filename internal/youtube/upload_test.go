package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUploadSession(t *testing.T) {
	var (
		gotPath   string
		gotQuery  string
		gotLen    string
		gotType   string
		gotBody   videoInsertRequest
		gotMethod string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotLen = r.Header.Get("X-Upload-Content-Length")
		gotType = r.Header.Get("X-Upload-Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Location", "https://upload.example/session-abc")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	meta := &Metadata{Title: "my video", Description: "desc", PrivacyStatus: "unlisted"}

	session, err := c.CreateUploadSession(context.Background(), meta, 4096, "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, "https://upload.example/session-abc", session.URI)
	assert.Equal(t, int64(4096), session.Total)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/videos", gotPath)
	assert.Equal(t, "uploadType=resumable&part=snippet,status", gotQuery)
	assert.Equal(t, "4096", gotLen)
	assert.Equal(t, "video/mp4", gotType)
	assert.Equal(t, "my video", gotBody.Snippet.Title)
	assert.Equal(t, "unlisted", gotBody.Status.PrivacyStatus)
}

func TestCreateUploadSession_LocationParameter(t *testing.T) {
	meta := &Metadata{Title: "geo", PrivacyStatus: "private"}
	lat, long := 60.17, 24.94
	meta.Latitude, meta.Longitude = &lat, &long

	var gotQuery string
	var gotBody videoInsertRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Location", "https://upload.example/s")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.CreateUploadSession(context.Background(), meta, 100, "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, "uploadType=resumable&part=snippet,status,recordingDetails", gotQuery)
	require.NotNil(t, gotBody.RecordingDetails)
	assert.Equal(t, 60.17, gotBody.RecordingDetails.Location.Latitude)
	assert.Equal(t, 24.94, gotBody.RecordingDetails.Location.Longitude)
}

func TestCreateUploadSession_MissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.CreateUploadSession(context.Background(), &Metadata{Title: "t", PrivacyStatus: "private"}, 100, "video/mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Location")
}

func TestCreateUploadSession_ServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"message": "quotaExceeded"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.CreateUploadSession(context.Background(), &Metadata{Title: "t", PrivacyStatus: "private"}, 100, "video/mp4")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, IsTransient(err))
}

func TestUploadChunk_PartialAccept(t *testing.T) {
	var gotRange, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Content-Range")

		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(b)

		w.Header().Set("Range", "bytes=0-1023")
		w.WriteHeader(resumeIncomplete)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 4096}
	chunk := strings.Repeat("x", 1024)

	res, err := c.UploadChunk(context.Background(), session, strings.NewReader(chunk), 0, 1024)
	require.NoError(t, err)

	assert.False(t, res.Done)
	assert.Equal(t, int64(1024), res.NextOffset)
	assert.Equal(t, "bytes 0-1023/4096", gotRange)
	assert.Equal(t, chunk, gotBody)
}

func TestUploadChunk_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"id": "dQw4w9WgXcQ"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 10}

	res, err := c.UploadChunk(context.Background(), session, strings.NewReader("0123456789"), 0, 10)
	require.NoError(t, err)

	assert.True(t, res.Done)
	require.NotNil(t, res.Video)
	assert.Equal(t, "dQw4w9WgXcQ", res.Video.ID)
}

func TestUploadChunk_CompletionWithoutVideoID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 5}

	_, err := c.UploadChunk(context.Background(), session, strings.NewReader("hello"), 0, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video id")
}

func TestUploadChunk_MidRange(t *testing.T) {
	var gotRange string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Content-Range")
		w.Header().Set("Range", "bytes=0-2047")
		w.WriteHeader(resumeIncomplete)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 4096}

	res, err := c.UploadChunk(context.Background(), session, strings.NewReader(strings.Repeat("y", 1024)), 1024, 1024)
	require.NoError(t, err)

	assert.Equal(t, "bytes 1024-2047/4096", gotRange)
	assert.Equal(t, int64(2048), res.NextOffset)
}

func TestUploadChunk_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 5}

	_, err := c.UploadChunk(context.Background(), session, strings.NewReader("hello"), 0, 5)
	require.Error(t, err)

	assert.True(t, IsAuthExpired(err))
	assert.False(t, IsTransient(err))
}

func TestQueryOffset(t *testing.T) {
	var gotRange string
	var gotLen int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Content-Range")
		gotLen = r.ContentLength

		w.Header().Set("Range", "bytes=0-8191")
		w.WriteHeader(resumeIncomplete)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	session := &UploadSession{URI: srv.URL, Total: 16384}

	res, err := c.QueryOffset(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, "bytes */16384", gotRange)
	assert.Equal(t, int64(0), gotLen)
	assert.Equal(t, int64(8192), res.NextOffset)
}

func TestQueryOffset_NothingReceived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// No Range header: the server has nothing yet.
		w.WriteHeader(resumeIncomplete)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	res, err := c.QueryOffset(context.Background(), &UploadSession{URI: srv.URL, Total: 100})
	require.NoError(t, err)

	assert.False(t, res.Done)
	assert.Equal(t, int64(0), res.NextOffset)
}

func TestQueryOffset_AlreadyComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "abc123"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	res, err := c.QueryOffset(context.Background(), &UploadSession{URI: srv.URL, Total: 100})
	require.NoError(t, err)

	assert.True(t, res.Done)
	assert.Equal(t, "abc123", res.Video.ID)
}

func TestNextOffsetFromRange(t *testing.T) {
	cases := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"bytes=0-0", 1, false},
		{"bytes=0-1023", 1024, false},
		{"bytes=0-52428799", 52428800, false},
		{"0-1023", 0, true},
		{"bytes=garbage", 0, true},
		{"bytes=0-xyz", 0, true},
	}

	for _, tc := range cases {
		got, err := nextOffsetFromRange(tc.header)
		if tc.wantErr {
			assert.Error(t, err, "header %q", tc.header)
			continue
		}

		require.NoError(t, err, "header %q", tc.header)
		assert.Equal(t, tc.want, got, "header %q", tc.header)
	}
}
