package carrier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/erp/marketsync/internal/domain/integration"
)

// ProcessedDirName is the sibling directory feed files are archived to
const ProcessedDirName = "processed"

// ErrFeedDirMissing is returned when the inbound feed directory is not configured
var ErrFeedDirMissing = errors.New("carrier: feed directory is required")

// FileFeedSource reads feed files from a local directory and archives them
// into its "processed" subdirectory
type FileFeedSource struct {
	dir     string
	pattern string
}

// NewFileFeedSource creates a new FileFeedSource. pattern defaults to "*.csv".
func NewFileFeedSource(dir, pattern string) (*FileFeedSource, error) {
	if dir == "" {
		return nil, ErrFeedDirMissing
	}
	if pattern == "" {
		pattern = "*.csv"
	}
	return &FileFeedSource{dir: dir, pattern: pattern}, nil
}

// Ensure FileFeedSource implements FeedSource
var _ integration.FeedSource = (*FileFeedSource)(nil)

// List returns matching files in the feed directory, oldest first
func (s *FileFeedSource) List(_ context.Context) ([]integration.FeedFile, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.pattern))
	if err != nil {
		return nil, fmt.Errorf("carrier: list feed files: %w", err)
	}

	files := make([]integration.FeedFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, integration.FeedFile{
			Name:    filepath.Base(m),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// Open opens a feed file by name
func (s *FileFeedSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("carrier: open feed file %s: %w", name, err)
	}
	return f, nil
}

// Archive moves a feed file into the processed directory
func (s *FileFeedSource) Archive(_ context.Context, name string) error {
	processed := filepath.Join(s.dir, ProcessedDirName)
	if err := os.MkdirAll(processed, 0o755); err != nil {
		return fmt.Errorf("carrier: create processed directory: %w", err)
	}
	base := filepath.Base(name)
	if err := os.Rename(filepath.Join(s.dir, base), filepath.Join(processed, base)); err != nil {
		return fmt.Errorf("carrier: archive feed file %s: %w", name, err)
	}
	return nil
}
