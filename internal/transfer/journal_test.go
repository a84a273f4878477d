package transfer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	return j
}

func TestJournal_RecordAndPending(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	entry, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	got, err := j.Pending(ctx, "/videos/a.mp4", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "/videos/a.mp4", got.Path)
	assert.Equal(t, int64(1000), got.Size)
	assert.Equal(t, "https://upload.example/s1", got.SessionURI)
	assert.Equal(t, int64(0), got.Offset)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestJournal_PendingMissesOnDifferentFile(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 0)
	require.NoError(t, err)

	// Same path, different size: the file changed, so the session does not
	// apply.
	got, err := j.Pending(ctx, "/videos/a.mp4", 2000)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = j.Pending(ctx, "/videos/b.mp4", 1000)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJournal_RecordReplacesSameFile(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	first, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 0)
	require.NoError(t, err)

	// Re-initiating the same file swaps in the new session URI without
	// growing the table.
	second, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s2", 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := j.Pending(ctx, "/videos/a.mp4", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://upload.example/s2", got.SessionURI)

	entries, err := j.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJournal_UpdateOffset(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	entry, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 0)
	require.NoError(t, err)

	require.NoError(t, j.UpdateOffset(ctx, entry.ID, 512))

	got, err := j.Pending(ctx, "/videos/a.mp4", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(512), got.Offset)
}

func TestJournal_Delete(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	entry, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 0)
	require.NoError(t, err)

	require.NoError(t, j.Delete(ctx, entry.ID))

	got, err := j.Pending(ctx, "/videos/a.mp4", 1000)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a gone entry is not an error.
	require.NoError(t, j.Delete(ctx, entry.ID))
}

func TestJournal_ListAndClear(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 100)
	require.NoError(t, err)
	_, err = j.Record(ctx, "/videos/b.mp4", 2000, "https://upload.example/s2", 200)
	require.NoError(t, err)

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	paths := []string{entries[0].Path, entries[1].Path}
	assert.ElementsMatch(t, []string{"/videos/a.mp4", "/videos/b.mp4"}, paths)

	require.NoError(t, j.Clear(ctx))

	entries, err = j.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := OpenJournal(dbPath, testLogger())
	require.NoError(t, err)

	entry, err := j.Record(ctx, "/videos/a.mp4", 1000, "https://upload.example/s1", 300)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// Reopening runs migrations again; they must be idempotent and the row
	// must still be there.
	j, err = OpenJournal(dbPath, testLogger())
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Pending(ctx, "/videos/a.mp4", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, int64(300), got.Offset)
}
