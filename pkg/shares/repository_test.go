package shares

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecords() []Record {
	return []Record{
		{File: types.File{Path: "@@music/Artist/Album/01.flac", Size: 100, Extension: "flac"}, LocalPath: "/srv/music/Artist/Album/01.flac"},
		{File: types.File{Path: "@@music/Artist/Album/02.flac", Size: 200, Extension: "flac"}, LocalPath: "/srv/music/Artist/Album/02.flac"},
		{File: types.File{Path: "@@music/Artist/Single/one.mp3", Size: 50, Extension: "mp3"}, LocalPath: "/srv/music/Artist/Single/one.mp3"},
	}
}

func fillTestRepository(t *testing.T, repo *Repository) {
	t.Helper()
	records := testRecords()
	require.NoError(t, repo.PutFiles(records))

	dirs := make(map[string][]string)
	for _, record := range records {
		dir := VirtualDir(record.File.Path)
		dirs[dir] = append(dirs[dir], record.File.Path)
	}
	require.NoError(t, repo.PutDirectories(dirs))
}

func TestRepositoryFind(t *testing.T) {
	repo := openTestRepository(t)
	fillTestRepository(t, repo)

	record, err := repo.Find("@@music/Artist/Album/01.flac")
	require.NoError(t, err)
	assert.Equal(t, "/srv/music/Artist/Album/01.flac", record.LocalPath)
	assert.Equal(t, int64(100), record.File.Size)

	_, err = repo.Find("@@music/Artist/Album/99.flac")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestRepositoryDirectoryAndBrowse(t *testing.T) {
	repo := openTestRepository(t)
	fillTestRepository(t, repo)

	listing, err := repo.Directory("@@music/Artist/Album")
	require.NoError(t, err)
	assert.Len(t, listing.Files, 2)

	_, err = repo.Directory("@@music/NoSuch")
	assert.True(t, errdefs.IsNotFound(err))

	browsed, err := repo.Browse()
	require.NoError(t, err)
	require.Len(t, browsed, 2)
	// Key order: Album sorts before Single.
	assert.Equal(t, "@@music/Artist/Album", browsed[0].Path)
	assert.Equal(t, "@@music/Artist/Single", browsed[1].Path)
}

func TestRepositoryCountsAndClear(t *testing.T) {
	repo := openTestRepository(t)
	fillTestRepository(t, repo)

	files, dirs, err := repo.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, files)
	assert.Equal(t, 2, dirs)

	require.NoError(t, repo.Clear())
	files, dirs, err = repo.Counts()
	require.NoError(t, err)
	assert.Zero(t, files)
	assert.Zero(t, dirs)
}

func TestRepositoryMeta(t *testing.T) {
	repo := openTestRepository(t)

	shares := []types.Share{{Alias: "music", Path: "/srv/music"}}
	require.NoError(t, repo.SetShares(shares))

	got, err := repo.Shares()
	require.NoError(t, err)
	assert.Equal(t, shares, got)

	at, err := repo.ScannedAt()
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	now := time.Now().Truncate(time.Second)
	require.NoError(t, repo.MarkScanned(now))
	at, err = repo.ScannedAt()
	require.NoError(t, err)
	assert.True(t, at.Equal(now))
}

func TestTryValidate(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "good.db")
	repo, err := OpenRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	assert.NoError(t, TryValidate(path))

	junk := filepath.Join(dir, "junk.db")
	require.NoError(t, os.WriteFile(junk, []byte("not a repository"), 0600))
	err = TryValidate(junk)
	require.Error(t, err)
	assert.True(t, errdefs.IsShareValidation(err))
}

func TestRepositoryWriteToProducesValidCopy(t *testing.T) {
	dir := t.TempDir()
	repo, err := OpenRepository(filepath.Join(dir, "orig.db"))
	require.NoError(t, err)
	defer repo.Close()
	fillTestRepository(t, repo)

	var buf bytes.Buffer
	n, err := repo.WriteTo(&buf)
	require.NoError(t, err)
	assert.Positive(t, n)

	copyPath := filepath.Join(dir, "copy.db")
	require.NoError(t, os.WriteFile(copyPath, buf.Bytes(), 0600))
	require.NoError(t, TryValidate(copyPath))

	dupe, err := OpenRepository(copyPath)
	require.NoError(t, err)
	defer dupe.Close()

	record, err := dupe.Find("@@music/Artist/Single/one.mp3")
	require.NoError(t, err)
	assert.Equal(t, "mp3", record.File.Extension)
}
