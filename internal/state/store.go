// Package state persists resumable crawl progress on the local filesystem.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

const fileName = "state.json"

// ErrNoState is returned by Load when a site has no saved progress.
var ErrNoState = errors.New("no crawl state")

// CrawlState is the resumable progress of one site's crawl.
type CrawlState struct {
	Site           string                 `json:"site"`
	RunID          string                 `json:"run_id"`
	StartedAt      time.Time              `json:"started_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Completed      bool                   `json:"completed"`
	ItemsProcessed int                    `json:"items_processed"`
	Visited        []string               `json:"visited"`
	Pending        []crawler.CandidateURL `json:"pending"`
	// CategoryItems is the number of item links taken per category root.
	CategoryItems map[string]int `json:"category_items,omitempty"`
}

// Store reads and writes CrawlState files under a base directory, one
// subdirectory per site.
type Store struct {
	baseDir string
}

// New creates a Store rooted at dir, creating the directory when needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create state directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat state directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("state path %q is not a directory", dir)
	}
	return &Store{baseDir: filepath.Clean(dir)}, nil
}

// Path returns the state file location for site.
func (s *Store) Path(site string) (string, error) {
	name, err := sanitizeSite(site)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.baseDir, name, fileName)
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for site %q", site)
	}
	return full, nil
}

// Load reads the saved state for site, or returns ErrNoState.
func (s *Store) Load(site string) (*CrawlState, error) {
	path, err := s.Path(site)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is sanitized above
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st CrawlState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	return &st, nil
}

// Save writes st atomically: a temp file in the same directory is renamed
// over the previous state so a crash never leaves a torn file.
func (s *Store) Save(st *CrawlState) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	path, err := s.Path(st.Site)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create site state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Clear deletes the saved state for site. Clearing a site with no state is
// not an error.
func (s *Store) Clear(site string) error {
	path, err := s.Path(site)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

var unsafeSiteChars = regexp.MustCompile(`[^a-z0-9_-]+`)

func sanitizeSite(site string) (string, error) {
	name := unsafeSiteChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(site)), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "", fmt.Errorf("invalid site name %q", site)
	}
	return name, nil
}
