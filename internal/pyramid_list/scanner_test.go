package pyramid_list

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"tileview/internal/tqt"
)

func writePyramid(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	tile := buf.Bytes()

	w, err := tqt.NewWriter(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetTile(0, 0, 0, tile); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(path); err != nil {
		t.Fatal(err)
	}
}

func TestScanDiscoversPyramids(t *testing.T) {
	dir := t.TempDir()
	writePyramid(t, filepath.Join(dir, "map.tqt"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, 0, zap.NewNop())
	defer s.Close()
	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}

	infos := s.GetPyramids()
	if len(infos) != 1 {
		t.Fatalf("found %d pyramids, want 1", len(infos))
	}
	info := infos[0]
	if info.ID == "" {
		t.Error("pyramid has no ID")
	}
	if info.Filename != "map.tqt" || info.Depth != 1 || info.TileSize != 4 {
		t.Errorf("unexpected metadata: %+v", info)
	}

	if s.GetPyramidByID(info.ID) == nil {
		t.Error("GetPyramidByID returned nil for a scanned pyramid")
	}
	if s.GetInfoByID("nope") != nil {
		t.Error("GetInfoByID returned info for an unknown ID")
	}

	if _, err := os.Stat(filepath.Join(dir, "map.json")); err != nil {
		t.Errorf("sidecar metadata not written: %v", err)
	}
}

func TestRescanKeepsIdentity(t *testing.T) {
	dir := t.TempDir()
	writePyramid(t, filepath.Join(dir, "map.tqt"))

	s := New(dir, 0, zap.NewNop())
	defer s.Close()
	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}
	first := s.GetPyramids()[0].ID

	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}
	if got := s.GetPyramids()[0].ID; got != first {
		t.Errorf("rescan changed pyramid ID: %s != %s", got, first)
	}
}

func TestScanCleansOrphanedSidecars(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "gone.json")
	if err := os.WriteFile(orphan, []byte(`{"id":"x"}`), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, 0, zap.NewNop())
	defer s.Close()
	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned sidecar survived the scan")
	}
}

func TestScanSkipsCorruptPyramids(t *testing.T) {
	dir := t.TempDir()
	writePyramid(t, filepath.Join(dir, "good.tqt"))
	if err := os.WriteFile(filepath.Join(dir, "bad.tqt"), []byte("not a pyramid"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, 0, zap.NewNop())
	defer s.Close()
	if err := s.Scan(); err != nil {
		t.Fatal(err)
	}
	if got := len(s.GetPyramids()); got != 1 {
		t.Errorf("found %d pyramids, want 1 (corrupt file skipped)", got)
	}
}
