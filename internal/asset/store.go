// Package asset owns the on-disk layout of produced puzzles: the
// images/videos/metadata directories, the puzzle_NNN naming scheme, and
// the atomic commit discipline for every file written under it.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gridshorts/pipeline/internal/model"
)

var indexPattern = regexp.MustCompile(`^puzzle_(\d+)$`)

// ItemID formats the sequential index into the stable naming scheme.
func ItemID(index int) string {
	return fmt.Sprintf("puzzle_%03d", index)
}

// Store manages the three output directories for one batch run.
type Store struct {
	root        string
	imagesDir   string
	videosDir   string
	metadataDir string
}

// NewStore creates the output tree if needed and returns a store rooted
// at dir.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		root:        dir,
		imagesDir:   filepath.Join(dir, "images"),
		videosDir:   filepath.Join(dir, "videos"),
		metadataDir: filepath.Join(dir, "metadata"),
	}
	for _, d := range []string{s.root, s.imagesDir, s.videosDir, s.metadataDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", d, err)
		}
	}
	return s, nil
}

// Root returns the output root directory.
func (s *Store) Root() string { return s.root }

// NextIndex scans all three output directories for the highest existing
// puzzle_NNN suffix and returns max+1. Directories that do not exist
// count as empty; any other filesystem error is returned as-is because
// allocation cannot proceed safely without a full scan. The maximum is
// taken across all locations, so an orphaned metadata file is enough to
// keep its index reserved — never overwriting wins over reclaiming gaps.
func (s *Store) NextIndex() (int, error) {
	max := 0
	for _, dir := range []string{s.imagesDir, s.videosDir, s.metadataDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			stem := e.Name()
			if ext := filepath.Ext(stem); ext != "" {
				stem = stem[:len(stem)-len(ext)]
			}
			m := indexPattern.FindStringSubmatch(stem)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
	}
	return max + 1, nil
}

// AllocateIndexes reserves n sequential indexes starting at the next
// free one. Pure filesystem read; the reservation is made real by the
// files the pipeline later commits under these indexes.
func (s *Store) AllocateIndexes(n int) ([]int, error) {
	start, err := s.NextIndex()
	if err != nil {
		return nil, err
	}
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = start + i
	}
	return indexes, nil
}

// ImagePath returns the final image path for an item.
func (s *Store) ImagePath(id string) string {
	return filepath.Join(s.imagesDir, id+".png")
}

// VideoPath returns the final video path for an item.
func (s *Store) VideoPath(id string) string {
	return filepath.Join(s.videosDir, id+".mp4")
}

// MetadataPath returns the final metadata path for an item.
func (s *Store) MetadataPath(id string) string {
	return filepath.Join(s.metadataDir, id+".json")
}

// commitBytes writes data to a temp file in the destination directory
// and renames it into place, so a crash never leaves a half-written
// file visible under its final name.
func commitBytes(dst string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(dst), ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", dst, err)
	}
	return nil
}

// commitFile copies src into the destination directory under a temp
// name, then renames. Copy-then-rename instead of a direct rename
// because src usually lives in a per-item scratch dir on another
// filesystem.
func commitFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), ".tmp-"+uuid.NewString())
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", dst, err)
	}
	return nil
}

// CommitImage atomically writes the rendered PNG under its final name.
func (s *Store) CommitImage(id string, png []byte) (string, error) {
	dst := s.ImagePath(id)
	if err := commitBytes(dst, png); err != nil {
		return "", err
	}
	return dst, nil
}

// CommitVideo atomically moves a staged video file under its final name.
func (s *Store) CommitVideo(id, stagedPath string) (string, error) {
	dst := s.VideoPath(id)
	if err := commitFile(dst, stagedPath); err != nil {
		return "", err
	}
	return dst, nil
}

// Metadata is the JSON document persisted next to each item's assets.
type Metadata struct {
	PuzzleID  string       `json:"puzzle_id"`
	Puzzle    model.Puzzle `json:"puzzle"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`

	Difficulty    int     `json:"difficulty"`
	ImagePath     string  `json:"image_path,omitempty"`
	VideoPath     string  `json:"video_path,omitempty"`
	VideoDuration float64 `json:"video_duration,omitempty"`

	PublishID     string `json:"tiktok_publish_id,omitempty"`
	PublishStatus string `json:"tiktok_status,omitempty"`
	Caption       string `json:"tiktok_title,omitempty"`
	RemoteFileID  string `json:"drive_file_id,omitempty"`
}

// CommitMetadata atomically writes the metadata document.
func (s *Store) CommitMetadata(id string, meta *Metadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	dst := s.MetadataPath(id)
	if err := commitBytes(dst, data); err != nil {
		return "", err
	}
	return dst, nil
}

// UpdateMetadata reads the item's metadata, applies mutate, stamps
// updated_at and commits the result atomically.
func (s *Store) UpdateMetadata(id string, mutate func(*Metadata)) error {
	path := s.MetadataPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	mutate(&meta)
	now := time.Now().UTC()
	meta.UpdatedAt = &now
	_, err = s.CommitMetadata(id, &meta)
	return err
}

// ReadMetadata loads the metadata document for an item.
func (s *Store) ReadMetadata(id string) (*Metadata, error) {
	data, err := os.ReadFile(s.MetadataPath(id))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
