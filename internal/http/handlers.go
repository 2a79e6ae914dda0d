package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tileview/internal/config"
	"tileview/internal/pyramid_list"
	"tileview/internal/tile_renderer"
)

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	scanner  *pyramid_list.Scanner
	renderer *tile_renderer.Renderer
}

func New(config *config.Config, logger *zap.Logger, scanner *pyramid_list.Scanner, renderer *tile_renderer.Renderer) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		scanner:  scanner,
		renderer: renderer,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandlePyramids(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pyramids := h.scanner.GetPyramids()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pyramids)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) HandlePyramidRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/pyramids/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 {
		http.NotFound(w, r)
		return
	}

	pyramidID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "meta":
		h.handleMeta(w, r, pyramidID)
	case len(parts) == 2 && parts[1] == "preview":
		h.handlePreview(w, r, pyramidID)
	case len(parts) == 5 && parts[1] == "tiles":
		h.handleTile(w, r, pyramidID, parts[2:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleMeta(w http.ResponseWriter, r *http.Request, pyramidID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	meta, err := h.renderer.GetPyramidMeta(pyramidID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (h *Handlers) handlePreview(w http.ResponseWriter, r *http.Request, pyramidID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.scanner.GetInfoByID(pyramidID) == nil {
		http.NotFound(w, r)
		return
	}

	result, err := h.renderer.RenderPreview(pyramidID, h.config.PreviewSize)
	if err != nil {
		h.logger.Error("Failed to render preview", zap.String("pyramid", pyramidID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeTile(w, r, result)
}

func (h *Handlers) handleTile(w http.ResponseWriter, r *http.Request, pyramidID string, tileParts []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := h.scanner.GetInfoByID(pyramidID)
	if info == nil {
		http.NotFound(w, r)
		return
	}

	var level, row, col int
	if _, err := fmt.Sscanf(tileParts[0], "%d", &level); err != nil {
		http.Error(w, "Invalid level", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(tileParts[1], "%d", &row); err != nil {
		http.Error(w, "Invalid row", http.StatusBadRequest)
		return
	}

	tileFile := tileParts[2]
	ext := filepath.Ext(tileFile)
	if ext != ".png" {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(strings.TrimSuffix(tileFile, ext), "%d", &col); err != nil {
		http.Error(w, "Invalid column", http.StatusBadRequest)
		return
	}

	if level < 0 || row < 0 || col < 0 {
		http.Error(w, "Coordinates must be non-negative", http.StatusBadRequest)
		return
	}
	if level >= info.Depth || row >= 1<<level || col >= 1<<level {
		http.NotFound(w, r)
		return
	}

	result, err := h.renderer.RenderTile(pyramidID, level, row, col)
	if err != nil {
		h.logger.Error("Failed to render tile",
			zap.String("pyramid", pyramidID),
			zap.Int("level", level),
			zap.Int("row", row),
			zap.Int("col", col),
			zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeTile(w, r, result)
}

func (h *Handlers) writeTile(w http.ResponseWriter, r *http.Request, result *tile_renderer.TileResult) {
	w.Header().Set("ETag", `"`+result.ETag+`"`)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", result.Size))
	w.Header().Set("Content-Type", "image/png")

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
