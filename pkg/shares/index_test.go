package shares

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

func newTestIndex(t *testing.T) (*Index, *Repository) {
	t.Helper()
	index := NewIndex(Limits{MinQueryChars: 3, MaxResults: 100})
	repo, err := OpenRepository(filepath.Join(t.TempDir(), LocalRepositoryName))
	require.NoError(t, err)
	index.AddOrUpdateHost(types.LocalHostName, nil, repo)
	t.Cleanup(func() { index.Close() })
	return index, repo
}

// writeShareTree lays out a small share on disk for scan tests.
func writeShareTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := []string{
		"Album1/01 - intro.mp3",
		"Album1/02 - outro.mp3",
		"Album2/01 - only.flac",
		"skipme/junk.mp3",
	}
	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	}
	return root
}

func TestIndexScanAndSearch(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)

	result, err := index.Scan(context.Background(), []string{"music:" + root}, []string{"skipme"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Files)
	assert.Equal(t, 2, result.Directories)

	files := index.Search("album1 mp3")
	require.Len(t, files, 2)
	assert.Equal(t, "@@music/Album1/01 - intro.mp3", files[0].Path)

	// The filtered directory contributed nothing.
	assert.Empty(t, index.Search("junk"))
}

func TestIndexSearchBounds(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)
	_, err := index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.NoError(t, err)

	t.Run("below minimum query length", func(t *testing.T) {
		assert.Nil(t, index.Search("al"))
	})

	t.Run("no positive terms", func(t *testing.T) {
		assert.Nil(t, index.Search("-flac"))
	})

	t.Run("result cap", func(t *testing.T) {
		index.SetLimits(Limits{MinQueryChars: 3, MaxResults: 1})
		assert.Len(t, index.Search("album"), 1)
	})
}

func TestIndexSearchIsDeterministicAcrossHosts(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)
	_, err := index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.NoError(t, err)

	remote, err := OpenRepository(filepath.Join(t.TempDir(), AgentRepositoryName("attic")))
	require.NoError(t, err)
	require.NoError(t, remote.PutFiles([]Record{
		{File: types.File{Path: "@@attic/Album1/zz.mp3", Size: 1}, LocalPath: "/attic/Album1/zz.mp3"},
	}))
	index.AddOrUpdateHost("attic", []types.Share{{Alias: "attic", Path: "/attic"}}, remote)

	first := index.Search("album1")
	second := index.Search("album1")
	require.Equal(t, first, second)

	// Hosts are visited in name order: attic sorts before local.
	require.Len(t, first, 3)
	assert.Equal(t, "@@attic/Album1/zz.mp3", first[0].Path)
}

func TestIndexSearchAgreesWithFilterTerms(t *testing.T) {
	index, repo := newTestIndex(t)
	root := writeShareTree(t)
	_, err := index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.NoError(t, err)

	var all []string
	require.NoError(t, repo.ForEachFile(func(r Record) error {
		all = append(all, r.File.Path)
		return nil
	}))
	require.NotEmpty(t, all)

	queries := []string{
		"album1 mp3",
		"album1 -outro",
		"mp3 -album1",
		"only flac minbr:320", // modifiers are out of band for the index
	}
	for _, query := range queries {
		t.Run(query, func(t *testing.T) {
			filter := ParseFilter(query)
			var want []string
			for _, path := range all {
				if filter.MatchTerms(path) {
					want = append(want, path)
				}
			}

			var got []string
			for _, file := range index.Search(query) {
				got = append(got, file.Path)
			}
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestIndexResolve(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)
	_, err := index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.NoError(t, err)

	host, localPath, err := index.Resolve(`@@music\Album2\01 - only.flac`)
	require.NoError(t, err)
	assert.Equal(t, types.LocalHostName, host)
	assert.Equal(t, filepath.Join(root, "Album2", "01 - only.flac"), localPath)

	_, _, err = index.Resolve(`@@music\Album2\missing.flac`)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestIndexScanGate(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)

	index.scanMu.Lock()
	index.scanState = types.ScanInProgress
	index.scanMu.Unlock()

	_, err := index.Scan(context.Background(), []string{"music:" + root}, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsScanInProgress(err))

	index.scanMu.Lock()
	index.scanState = types.ScanIdle
	index.scanMu.Unlock()

	_, err = index.Scan(context.Background(), []string{"music:" + root}, nil)
	assert.NoError(t, err)
}

func TestIndexRemoveHostDeletesAgentRepository(t *testing.T) {
	index, _ := newTestIndex(t)

	path := filepath.Join(t.TempDir(), AgentRepositoryName("attic"))
	remote, err := OpenRepository(path)
	require.NoError(t, err)
	index.AddOrUpdateHost("attic", nil, remote)
	require.Contains(t, index.Hosts(), "attic")

	index.RemoveHost("attic")
	assert.NotContains(t, index.Hosts(), "attic")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestIndexReplaceHostDiscardsOldRepository(t *testing.T) {
	index, _ := newTestIndex(t)
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "agent-attic.1.db")
	oldRepo, err := OpenRepository(oldPath)
	require.NoError(t, err)
	index.AddOrUpdateHost("attic", nil, oldRepo)

	newRepo, err := OpenRepository(filepath.Join(dir, "agent-attic.2.db"))
	require.NoError(t, err)
	index.AddOrUpdateHost("attic", nil, newRepo)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
}

func TestIndexChangedPulsesAndCoalesces(t *testing.T) {
	index := NewIndex(Limits{MinQueryChars: 3, MaxResults: 10})
	repo, err := OpenRepository(filepath.Join(t.TempDir(), LocalRepositoryName))
	require.NoError(t, err)
	defer index.Close()

	index.AddOrUpdateHost(types.LocalHostName, nil, repo)
	index.AddOrUpdateHost(types.LocalHostName, nil, repo)

	select {
	case <-index.Changed():
	default:
		t.Fatal("expected a change pulse")
	}
	select {
	case <-index.Changed():
		t.Fatal("pulses should coalesce")
	default:
	}
}

func TestIndexSnapshot(t *testing.T) {
	index, _ := newTestIndex(t)
	root := writeShareTree(t)
	_, err := index.Scan(context.Background(), []string{"music:" + root}, []string{"skipme"})
	require.NoError(t, err)

	snapshot := index.Snapshot()
	assert.Equal(t, types.ScanIdle, snapshot.ScanState)
	assert.Equal(t, 1.0, snapshot.ScanProgress)
	assert.Equal(t, []string{types.LocalHostName}, snapshot.Hosts)
	assert.Equal(t, 3, snapshot.Files)
	assert.Equal(t, 2, snapshot.Directories)
}
