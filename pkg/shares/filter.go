package shares

import (
	"strconv"
	"strings"

	"github.com/slskd/slskgo/pkg/types"
)

// Filter is a parsed search filter expression. The same grammar drives
// index searches (terms only), response post-filtering, and operator
// filtering in clients, so the two sides of a search agree on what
// matches.
type Filter struct {
	Includes []string
	Excludes []string

	MinBitRate       int
	MinBitDepth      int
	MinFileSize      int64
	MinLength        int
	MinFilesInFolder int

	IsCBR      bool
	IsVBR      bool
	IsLossless bool
	IsLossy    bool
}

// ParseFilter parses a filter expression. Tokens are separated by
// whitespace: "-term" excludes, "name:N" sets a numeric threshold,
// bare flag words set booleans, anything else is an include term.
// Malformed modifier values are ignored rather than rejected.
func ParseFilter(expression string) Filter {
	var f Filter
	for _, token := range strings.Fields(expression) {
		lower := strings.ToLower(token)

		switch lower {
		case "iscbr":
			f.IsCBR = true
			continue
		case "isvbr":
			f.IsVBR = true
			continue
		case "islossless":
			f.IsLossless = true
			continue
		case "islossy":
			f.IsLossy = true
			continue
		}

		if name, value, found := strings.Cut(lower, ":"); found {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				continue
			}
			switch name {
			case "minbr", "minbitrate":
				f.MinBitRate = n
			case "minbd", "minbitdepth":
				f.MinBitDepth = n
			case "minfs", "minfilesize":
				f.MinFileSize = int64(n)
			case "minlen", "minlength":
				f.MinLength = n
			case "minfif", "minfilesinfolder":
				f.MinFilesInFolder = n
			}
			continue
		}

		if rest, found := strings.CutPrefix(lower, "-"); found {
			if rest != "" {
				f.Excludes = append(f.Excludes, rest)
			}
			continue
		}

		f.Includes = append(f.Includes, lower)
	}
	return f
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Includes) == 0 && len(f.Excludes) == 0 &&
		f.MinBitRate == 0 && f.MinBitDepth == 0 && f.MinFileSize == 0 &&
		f.MinLength == 0 && f.MinFilesInFolder == 0 &&
		!f.IsCBR && !f.IsVBR && !f.IsLossless && !f.IsLossy
}

// MatchTerms applies only the include and exclude terms against a
// path, case-insensitively. The index uses this half of the grammar;
// colon modifiers and flags are out of band for path matching.
func (f Filter) MatchTerms(path string) bool {
	lower := strings.ToLower(path)
	for _, include := range f.Includes {
		if !strings.Contains(lower, include) {
			return false
		}
	}
	for _, exclude := range f.Excludes {
		if strings.Contains(lower, exclude) {
			return false
		}
	}
	return true
}

// Match applies the full grammar to one file. MinFilesInFolder is a
// per-folder property and is handled by Apply.
func (f Filter) Match(file types.File) bool {
	if !f.MatchTerms(file.Path) {
		return false
	}
	if f.MinBitRate > 0 && file.BitRate < f.MinBitRate {
		return false
	}
	if f.MinBitDepth > 0 && file.BitDepth < f.MinBitDepth {
		return false
	}
	if f.MinFileSize > 0 && file.Size < f.MinFileSize {
		return false
	}
	if f.MinLength > 0 && file.Length < f.MinLength {
		return false
	}
	if f.IsCBR && file.IsVBR {
		return false
	}
	if f.IsVBR && !file.IsVBR {
		return false
	}
	if f.IsLossless && !file.IsLossless() {
		return false
	}
	if f.IsLossy && file.IsLossless() {
		return false
	}
	return true
}

// Apply filters a search response's file list and recomputes its
// counters. The second return is false when nothing survives, in which
// case the response should be dropped entirely.
func (f Filter) Apply(response types.SearchResponse) (types.SearchResponse, bool) {
	if f.Empty() {
		return response, len(response.Files) > 0
	}

	kept := make([]types.File, 0, len(response.Files))
	for _, file := range response.Files {
		if f.Match(file) {
			kept = append(kept, file)
		}
	}

	if f.MinFilesInFolder > 0 {
		perFolder := make(map[string]int, len(kept))
		for _, file := range kept {
			perFolder[wireDir(file.Path)]++
		}
		filtered := kept[:0]
		for _, file := range kept {
			if perFolder[wireDir(file.Path)] >= f.MinFilesInFolder {
				filtered = append(filtered, file)
			}
		}
		kept = filtered
	}

	response.Files = kept
	response.FileCount = len(kept)
	return response, len(kept) > 0
}

// wireDir returns the folder part of a path in either separator
// convention.
func wireDir(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[:i]
	}
	return path
}
