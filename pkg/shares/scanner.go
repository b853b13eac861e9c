package shares

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"

	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/types"
)

// scanBatchSize bounds the records written per bbolt transaction.
const scanBatchSize = 500

// ScanResult summarises one completed scan.
type ScanResult struct {
	Files       int
	Directories int
	Elapsed     time.Duration
}

// Scanner walks share roots and fills a repository. It is stateless;
// the single-writer gate lives in the Index.
type Scanner struct {
	logger zerolog.Logger
}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{logger: log.WithComponent("shares.scanner")}
}

// Scan clears the repository and re-indexes every share root. filters
// are exclusion patterns applied to the real path; progress (optional)
// receives values in [0, 1] as directories complete. Cancelling ctx
// aborts between directories.
func (s *Scanner) Scan(ctx context.Context, repo *Repository, shares []types.Share, filters []*regexp.Regexp, progress func(float64)) (ScanResult, error) {
	start := time.Now()

	totalDirs, err := s.countDirectories(shares, filters)
	if err != nil {
		return ScanResult{}, err
	}

	if err := repo.Clear(); err != nil {
		return ScanResult{}, fmt.Errorf("failed to clear repository: %w", err)
	}
	if err := repo.SetShares(shares); err != nil {
		return ScanResult{}, fmt.Errorf("failed to record share roots: %w", err)
	}

	var (
		batch    []Record
		dirs     = make(map[string][]string)
		files    int
		seenDirs int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.PutFiles(batch); err != nil {
			return fmt.Errorf("failed to write file batch: %w", err)
		}
		files += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, share := range shares {
		s.logger.Info().
			Str("alias", share.Alias).
			Str("path", share.Path).
			Msg("scanning share")

		err := godirwalk.Walk(share.Path, &godirwalk.Options{
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if excluded(osPathname, filters) {
					if de.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if de.IsDir() {
					seenDirs++
					if progress != nil && totalDirs > 0 {
						progress(float64(seenDirs) / float64(totalDirs))
					}
					return nil
				}
				if !de.IsRegular() {
					return nil
				}

				record, err := buildRecord(share, osPathname)
				if err != nil {
					s.logger.Warn().Err(err).Str("path", osPathname).Msg("skipping unreadable file")
					return nil
				}
				dir := VirtualDir(record.File.Path)
				dirs[dir] = append(dirs[dir], record.File.Path)
				batch = append(batch, record)
				if len(batch) >= scanBatchSize {
					return flush()
				}
				return nil
			},
			ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
				s.logger.Warn().Err(err).Str("path", osPathname).Msg("skipping unwalkable entry")
				return godirwalk.SkipNode
			},
		})
		if err != nil {
			return ScanResult{}, fmt.Errorf("failed to walk %s: %w", share.Path, err)
		}
	}

	if err := flush(); err != nil {
		return ScanResult{}, err
	}
	if err := repo.PutDirectories(dirs); err != nil {
		return ScanResult{}, fmt.Errorf("failed to write directory table: %w", err)
	}
	if err := repo.MarkScanned(time.Now()); err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{Files: files, Directories: len(dirs), Elapsed: time.Since(start)}
	s.logger.Info().
		Int("files", result.Files).
		Int("directories", result.Directories).
		Dur("elapsed", result.Elapsed).
		Msg("scan complete")
	return result, nil
}

// countDirectories pre-walks the roots so progress can be reported as
// a fraction of directories visited.
func (s *Scanner) countDirectories(shares []types.Share, filters []*regexp.Regexp) (int, error) {
	total := 0
	for _, share := range shares {
		err := godirwalk.Walk(share.Path, &godirwalk.Options{
			Unsorted: true,
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if excluded(osPathname, filters) {
					if de.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if de.IsDir() {
					total++
				}
				return nil
			},
			ErrorCallback: func(string, error) godirwalk.ErrorAction {
				return godirwalk.SkipNode
			},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to enumerate %s: %w", share.Path, err)
		}
	}
	return total, nil
}

// buildRecord stats one file and produces its index record.
func buildRecord(share types.Share, osPathname string) (Record, error) {
	info, err := os.Stat(osPathname)
	if err != nil {
		return Record{}, err
	}

	rel, err := filepath.Rel(share.Path, osPathname)
	if err != nil {
		return Record{}, err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(osPathname)), ".")
	return Record{
		File: types.File{
			Path:      VirtualPath(share.Alias, filepath.ToSlash(rel)),
			Size:      info.Size(),
			Extension: ext,
		},
		LocalPath: osPathname,
	}, nil
}

// excluded reports whether any exclusion pattern matches the real
// path.
func excluded(osPathname string, filters []*regexp.Regexp) bool {
	for _, filter := range filters {
		if filter.MatchString(osPathname) {
			return true
		}
	}
	return false
}

// CompileFilters compiles the configured exclusion patterns. Patterns
// are validated by config, so failures here indicate drift between
// validation and use.
func CompileFilters(patterns []string) ([]*regexp.Regexp, error) {
	filters := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile share filter %q: %w", pattern, err)
		}
		filters = append(filters, re)
	}
	return filters, nil
}
