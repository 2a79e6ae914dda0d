package http

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/config"
	"tileview/internal/device"
	"tileview/internal/pyramid_list"
	"tileview/internal/tile_renderer"
	"tileview/internal/tqt"
)

func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()

	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	w, err := tqt.NewWriter(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetTile(0, 0, 0, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(filepath.Join(dir, "map.tqt")); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{DataDir: dir, PreviewSize: 4}
	log := zap.NewNop()

	scanner := pyramid_list.New(dir, 0, log)
	t.Cleanup(scanner.Close)
	if err := scanner.Scan(); err != nil {
		t.Fatal(err)
	}
	id := scanner.GetPyramids()[0].ID

	tileCache := cache.New(device.NewSoftwareAllocator(), 0, nil)
	t.Cleanup(tileCache.Close)

	renderer := tile_renderer.New(scanner, tileCache, log)
	handlers := New(cfg, log, scanner, renderer)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pyramids", handlers.HandlePyramids)
	mux.HandleFunc("/api/pyramids/", handlers.HandlePyramidRoutes)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	return handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux)), id
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestListPyramids(t *testing.T) {
	h, id := newTestServer(t)

	rec := get(t, h, "/api/pyramids")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []pyramid_list.PyramidInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != id {
		t.Errorf("unexpected listing: %+v", infos)
	}
}

func TestTileEndpoint(t *testing.T) {
	h, id := newTestServer(t)

	rec := get(t, h, "/api/pyramids/"+id+"/tiles/0/0/0.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("body is not valid PNG: %v", err)
	}
}

func TestTileEndpointErrors(t *testing.T) {
	h, id := newTestServer(t)

	cases := []struct {
		path string
		code int
	}{
		{"/api/pyramids/unknown/tiles/0/0/0.png", http.StatusNotFound},
		{"/api/pyramids/" + id + "/tiles/1/0/0.png", http.StatusNotFound}, // level beyond depth
		{"/api/pyramids/" + id + "/tiles/0/0/0.jpg", http.StatusBadRequest},
		{"/api/pyramids/" + id + "/tiles/0/x/0.png", http.StatusBadRequest},
		{"/api/pyramids/" + id + "/nope", http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := get(t, h, c.path); rec.Code != c.code {
			t.Errorf("GET %s: status = %d, want %d", c.path, rec.Code, c.code)
		}
	}
}

func TestMetaAndPreview(t *testing.T) {
	h, id := newTestServer(t)

	rec := get(t, h, "/api/pyramids/"+id+"/meta")
	if rec.Code != http.StatusOK {
		t.Fatalf("meta status = %d", rec.Code)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta["depth"].(float64) != 1 {
		t.Errorf("meta depth = %v, want 1", meta["depth"])
	}

	rec = get(t, h, "/api/pyramids/"+id+"/preview")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d", rec.Code)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("preview is not valid PNG: %v", err)
	}
}
