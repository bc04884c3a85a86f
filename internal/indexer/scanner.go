package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamaly87/code-reader/internal/models"
)

// Scanner walks a repository tree applying the job's file filters
type Scanner struct {
	cfg        models.JobConfig
	extensions map[string]struct{}
	excluded   map[string]struct{}
}

// NewScanner creates a scanner for a job configuration
func NewScanner(cfg models.JobConfig) *Scanner {
	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeDirs))
	for _, dir := range cfg.ExcludeDirs {
		excluded[dir] = struct{}{}
	}
	return &Scanner{cfg: cfg, extensions: extensions, excluded: excluded}
}

// ScannedFile is a file selected for indexing
type ScannedFile struct {
	AbsolutePath string
	RelativePath string
	SizeBytes    int64
}

// SkippedFile records why a candidate file was not selected
type SkippedFile struct {
	Path   string
	Reason string
}

// ScanResult contains the results of a directory scan
type ScanResult struct {
	Files        []ScannedFile
	SkippedFiles []SkippedFile
	TotalScanned int
}

// Scan walks root and returns the files matching the configured extensions.
// Symlinks are followed; a visited-realpath set classifies already-seen
// targets as circular and skips them. Scan order is deterministic for a
// given filesystem view (directory entries are visited in name order), so
// batch partitioning is stable across resumptions.
func (s *Scanner) Scan(root string) (*ScanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repository path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path is not a directory: %s", root)
	}

	result := &ScanResult{}
	visited := make(map[string]struct{})
	if err := s.walk(root, "", visited, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Scanner) walk(dir, rel string, visited map[string]struct{}, result *ScanResult) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
			Path:   displayPath(rel, dir),
			Reason: fmt.Sprintf("failed to resolve path: %v", err),
		})
		return nil
	}
	if _, seen := visited[real]; seen {
		result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
			Path:   displayPath(rel, dir),
			Reason: "circular symlink",
		})
		return nil
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
			Path:   displayPath(rel, dir),
			Reason: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		childAbs := filepath.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		// os.Stat follows symlinks, so linked directories recurse too
		info, err := os.Stat(childAbs)
		if err != nil {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
				Path:   childRel,
				Reason: fmt.Sprintf("failed to stat: %v", err),
			})
			continue
		}

		if info.IsDir() {
			if _, excluded := s.excluded[name]; excluded {
				continue
			}
			if err := s.walk(childAbs, childRel, visited, result); err != nil {
				return err
			}
			continue
		}

		result.TotalScanned++

		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := s.extensions[ext]; !ok {
			continue
		}

		if info.Size() > s.cfg.MaxFileSize {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
				Path:   childRel,
				Reason: fmt.Sprintf("file too large (%d bytes)", info.Size()),
			})
			continue
		}
		if info.Size() == 0 {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
				Path:   childRel,
				Reason: "empty file",
			})
			continue
		}

		result.Files = append(result.Files, ScannedFile{
			AbsolutePath: childAbs,
			RelativePath: childRel,
			SizeBytes:    info.Size(),
		})
	}

	return nil
}

func displayPath(rel, abs string) string {
	if rel != "" {
		return rel
	}
	return abs
}

// PartitionIntoBatches splits files into contiguous slices of at most
// batchSize, preserving scan order so resumption by batch index is
// consistent.
func PartitionIntoBatches(files []ScannedFile, batchSize int) [][]ScannedFile {
	if batchSize <= 0 || len(files) == 0 {
		return nil
	}

	var batches [][]ScannedFile
	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[i:end])
	}
	return batches
}
