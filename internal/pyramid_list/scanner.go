package pyramid_list

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tileview/internal/tqt"
)

type PyramidInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Depth    int    `json:"depth"`
	TileSize int    `json:"tile_size"`
	Bytes    int64  `json:"bytes"`
}

// Scanner discovers .tqt pyramids under a data directory and keeps them
// open for tile loading. Each pyramid gets a stable UUID recorded in a JSON
// sidecar next to the file.
type Scanner struct {
	dataDir          string
	decodeCacheTiles int
	logger           *zap.Logger
	infos            []PyramidInfo
	open             map[string]*tqt.Pyramid
}

func New(dataDir string, decodeCacheTiles int, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir:          dataDir,
		decodeCacheTiles: decodeCacheTiles,
		logger:           logger,
		open:             map[string]*tqt.Pyramid{},
	}
}

func (s *Scanner) Scan() error {
	s.closeAll()
	s.infos = []PyramidInfo{}

	if err := s.cleanupOrphanedJSON(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".tqt" {
			continue
		}

		path := s.getFilePath(entry.Name())
		fileInfo, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		p, err := tqt.Open(path, s.decodeCacheTiles)
		if err != nil {
			s.logger.Warn("Skipping unreadable pyramid", zap.String("path", path), zap.Error(err))
			continue
		}

		basename := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		jsonPath := s.getFilePath(basename + ".json")

		meta, err := s.loadMetadata(jsonPath)
		if err != nil {
			meta = &PyramidInfo{ID: uuid.New().String()}
			s.logger.Info("Creating metadata file",
				zap.String("path", path),
				zap.String("id", meta.ID))
		}
		meta.Filename = entry.Name()
		meta.Depth = p.Depth()
		meta.TileSize = p.TileSize()
		meta.Bytes = fileInfo.Size()

		if err := s.saveMetadata(jsonPath, meta); err != nil {
			s.logger.Warn("Failed to save metadata", zap.String("json_path", jsonPath), zap.Error(err))
		}

		s.infos = append(s.infos, *meta)
		s.open[meta.ID] = p
	}

	return nil
}

// cleanupOrphanedJSON deletes sidecar files whose pyramid is gone.
func (s *Scanner) cleanupOrphanedJSON() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".json" {
			continue
		}
		basename := strings.TrimSuffix(entry.Name(), ".json")
		if _, err := os.Stat(s.getFilePath(basename + ".tqt")); err == nil {
			continue
		}
		path := s.getFilePath(entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Failed to delete orphaned JSON", zap.String("path", path), zap.Error(err))
		} else {
			s.logger.Info("Deleted orphaned JSON file", zap.String("path", path))
		}
	}

	return nil
}

func (s *Scanner) GetPyramids() []PyramidInfo {
	return s.infos
}

func (s *Scanner) GetInfoByID(id string) *PyramidInfo {
	for _, info := range s.infos {
		if info.ID == id {
			return &info
		}
	}
	return nil
}

// GetPyramidByID returns the open pyramid, or nil if the ID is unknown.
func (s *Scanner) GetPyramidByID(id string) *tqt.Pyramid {
	return s.open[id]
}

// Close releases every open pyramid.
func (s *Scanner) Close() {
	s.closeAll()
}

func (s *Scanner) closeAll() {
	for id, p := range s.open {
		if err := p.Close(); err != nil {
			s.logger.Warn("Failed to close pyramid", zap.String("id", id), zap.Error(err))
		}
		delete(s.open, id)
	}
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

func (s *Scanner) loadMetadata(path string) (*PyramidInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta PyramidInfo
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("metadata has no id")
	}

	return &meta, nil
}

func (s *Scanner) saveMetadata(path string, meta *PyramidInfo) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
