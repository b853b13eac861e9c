package shares

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slskd/slskgo/pkg/types"
)

func TestParseFilter(t *testing.T) {
	f := ParseFilter("Mingus -live minbr:320 minfs:1000 islossless badmod:x")

	assert.Equal(t, []string{"mingus"}, f.Includes)
	assert.Equal(t, []string{"live"}, f.Excludes)
	assert.Equal(t, 320, f.MinBitRate)
	assert.Equal(t, int64(1000), f.MinFileSize)
	assert.True(t, f.IsLossless)
	assert.False(t, f.IsLossy)
	// Unknown or malformed modifiers are dropped, not treated as terms.
	assert.Len(t, f.Includes, 1)
}

func TestParseFilterModifierAliases(t *testing.T) {
	long := ParseFilter("minbitrate:192 minbitdepth:24 minfilesize:5 minlength:60 minfilesinfolder:3")
	short := ParseFilter("minbr:192 minbd:24 minfs:5 minlen:60 minfif:3")

	assert.Equal(t, long, short)
}

func TestMatchTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		path  string
		want  bool
	}{
		{name: "single include", query: "album", path: "@@music/Artist/Album/01.mp3", want: true},
		{name: "case insensitive", query: "ALBUM", path: "@@music/artist/album/01.mp3", want: true},
		{name: "all includes required", query: "artist nosuch", path: "@@music/Artist/Album/01.mp3", want: false},
		{name: "exclude rejects", query: "album -artist", path: "@@music/Artist/Album/01.mp3", want: false},
		{name: "modifiers ignored for paths", query: "album minbr:9999", path: "@@music/Artist/Album/01.mp3", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilter(tt.query).MatchTerms(tt.path))
		})
	}
}

func TestMatchAttributes(t *testing.T) {
	flac := types.File{Path: "@@music/a/b/01.flac", Size: 20 << 20, Extension: "flac", BitDepth: 16}
	cbr := types.File{Path: "@@music/a/b/01.mp3", Size: 6 << 20, Extension: "mp3", BitRate: 320}
	vbr := types.File{Path: "@@music/a/b/02.mp3", Size: 4 << 20, Extension: "mp3", BitRate: 245, IsVBR: true}

	tests := []struct {
		name  string
		query string
		file  types.File
		want  bool
	}{
		{name: "min bitrate met", query: "b minbr:320", file: cbr, want: true},
		{name: "min bitrate unmet", query: "b minbr:320", file: vbr, want: false},
		{name: "lossless flag", query: "b islossless", file: flac, want: true},
		{name: "lossless flag rejects mp3", query: "b islossless", file: cbr, want: false},
		{name: "lossy flag rejects flac", query: "b islossy", file: flac, want: false},
		{name: "cbr flag rejects vbr", query: "b iscbr", file: vbr, want: false},
		{name: "vbr flag", query: "b isvbr", file: vbr, want: true},
		{name: "contradictory flags eliminate", query: "b iscbr isvbr", file: cbr, want: false},
		{name: "min size", query: "b minfs:10000000", file: flac, want: true},
		{name: "min bit depth", query: "b minbd:24", file: flac, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilter(tt.query).Match(tt.file))
		})
	}
}

func TestApplyFiltersResponse(t *testing.T) {
	response := types.SearchResponse{
		Username:  "peer",
		FileCount: 3,
		Files: []types.File{
			{Path: `@@m\a\album\01.mp3`, BitRate: 320},
			{Path: `@@m\a\album\02.mp3`, BitRate: 128},
			{Path: `@@m\a\single\only.mp3`, BitRate: 320},
		},
	}

	filtered, ok := ParseFilter("album minbr:192").Apply(response)
	require := assert.New(t)
	require.True(ok)
	require.Equal(1, filtered.FileCount)
	require.Equal(`@@m\a\album\01.mp3`, filtered.Files[0].Path)
}

func TestApplyMinFilesInFolder(t *testing.T) {
	response := types.SearchResponse{
		FileCount: 3,
		Files: []types.File{
			{Path: `@@m\a\album\01.mp3`},
			{Path: `@@m\a\album\02.mp3`},
			{Path: `@@m\a\single\only.mp3`},
		},
	}

	filtered, ok := ParseFilter("mp3 minfif:2").Apply(response)
	assert.True(t, ok)
	assert.Equal(t, 2, filtered.FileCount)
	for _, file := range filtered.Files {
		assert.Contains(t, file.Path, `\album\`)
	}
}

func TestApplyDropsEmptiedResponse(t *testing.T) {
	response := types.SearchResponse{
		FileCount: 1,
		Files:     []types.File{{Path: `@@m\a\b\01.mp3`, BitRate: 64}},
	}

	_, ok := ParseFilter("mp3 minbr:320").Apply(response)
	assert.False(t, ok)
}

func TestEmptyFilterPassesNonEmptyResponses(t *testing.T) {
	f := ParseFilter("   ")
	assert.True(t, f.Empty())

	kept, ok := f.Apply(types.SearchResponse{FileCount: 1, Files: []types.File{{Path: "x"}}})
	assert.True(t, ok)
	assert.Equal(t, 1, kept.FileCount)

	_, ok = f.Apply(types.SearchResponse{})
	assert.False(t, ok)
}
