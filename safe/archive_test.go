package safe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// writeTestSAFETree writes a minimal product tree below root and returns the
// product-relative paths written.
func writeTestSAFETree(t *testing.T, root string) []string {
	t.Helper()

	paths := []string{
		"MTD_MSIL1C.xml",
		"GRANULE/" + testGranuleID + "/IMG_DATA/T33UUP_20170105T101402_B02.jp2",
		"GRANULE/" + testGranuleID + "/QI_DATA/MSK_CLOUDS_B00.gml",
	}
	content := map[string][]byte{
		paths[0]: []byte(testProductXML([]string{strings.TrimSuffix(testBandPath(2), ".jp2")})),
		paths[1]: []byte("jp2-bytes"),
		paths[2]: []byte(testCloudGML()),
	}
	for p, data := range content {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

// writeTestSAFEZip packs the same tree into a zip with a ".SAFE/" root entry
// prefix, the way distributed products are packed.
func writeTestSAFEZip(t *testing.T, dir string) string {
	t.Helper()

	zipPath := filepath.Join(dir, "product.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)
	entries := map[string][]byte{
		"S2A_TEST.SAFE/MTD_MSIL1C.xml": []byte(testProductXML([]string{
			strings.TrimSuffix(testBandPath(2), ".jp2"),
		})),
		"S2A_TEST.SAFE/GRANULE/" + testGranuleID + "/IMG_DATA/T33UUP_20170105T101402_B02.jp2": []byte("jp2-bytes"),
		"S2A_TEST.SAFE/GRANULE/" + testGranuleID + "/QI_DATA/MSK_CLOUDS_B00.gml":              []byte(testCloudGML()),
	}
	for name, data := range entries {
		ew, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ew.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return zipPath
}

func TestDirArchive_OpenListExists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	paths := writeTestSAFETree(t, root)

	archive, err := NewDirArchive(root)
	if err != nil {
		t.Fatal(err)
	}

	listed, err := archive.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != len(paths) {
		t.Fatalf("expected %d paths, got %d: %v", len(paths), len(listed), listed)
	}

	ok, err := archive.Exists(ctx, paths[1])
	if err != nil || !ok {
		t.Fatalf("expected band file to exist, ok=%v err=%v", ok, err)
	}
	ok, err = archive.Exists(ctx, "GRANULE/nope.jp2")
	if err != nil || ok {
		t.Fatalf("expected missing file to not exist, ok=%v err=%v", ok, err)
	}

	rc, err := archive.Open(ctx, paths[1])
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "jp2-bytes" {
		t.Fatalf("expected band bytes, got %q (err=%v)", data, err)
	}

	if _, err := archive.Open(ctx, "missing.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestDirArchive_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	archive, err := NewDirArchive(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"", ".", "..", "../etc/passwd", "/abs/path"} {
		if _, err := archive.Open(ctx, p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("%q: expected ErrInvalidPath, got: %v", p, err)
		}
	}
}

func TestDirArchive_RasterPath(t *testing.T) {
	root := t.TempDir()
	archive, err := NewDirArchive(root)
	if err != nil {
		t.Fatal(err)
	}

	got := archive.RasterPath("GRANULE/a/IMG_DATA/x_B01.jp2")
	want := filepath.Join(root, "GRANULE", "a", "IMG_DATA", "x_B01.jp2")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if archive.RasterPath("../escape") != "" {
		t.Error("expected empty raster path for escaping path")
	}
}

func TestNewDirArchive_Missing(t *testing.T) {
	if _, err := NewDirArchive(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestZipArchive_StripsSAFERoot(t *testing.T) {
	ctx := context.Background()
	zipPath := writeTestSAFEZip(t, t.TempDir())

	archive, err := NewZipArchive(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = archive.(io.Closer).Close() }()

	ok, err := archive.Exists(ctx, "MTD_MSIL1C.xml")
	if err != nil || !ok {
		t.Fatalf("expected root-stripped metadata path, ok=%v err=%v", ok, err)
	}

	listed, err := archive.List(ctx, "GRANULE/")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 granule files, got %v", listed)
	}
	for _, p := range listed {
		if strings.Contains(p, ".SAFE/") {
			t.Errorf("expected stripped path, got %q", p)
		}
	}
}

func TestZipArchive_RasterPathUsesVsizip(t *testing.T) {
	zipPath := writeTestSAFEZip(t, t.TempDir())

	archive, err := NewZipArchive(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = archive.(io.Closer).Close() }()

	got := archive.RasterPath("GRANULE/x/IMG_DATA/y_B01.jp2")
	want := "/vsizip/" + zipPath + "/S2A_TEST.SAFE/GRANULE/x/IMG_DATA/y_B01.jp2"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestZipAndDirArchive_YieldIdenticalProducts(t *testing.T) {
	ctx := context.Background()

	root := t.TempDir()
	writeTestSAFETree(t, root)
	zipPath := writeTestSAFEZip(t, t.TempDir())

	fromDir, err := OpenProduct(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fromDir.Close() }()

	fromZip, err := OpenProduct(ctx, zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fromZip.Close() }()

	if fromDir.BBox() != fromZip.BBox() {
		t.Errorf("bbox differs: %+v vs %+v", fromDir.BBox(), fromZip.BBox())
	}
	if len(fromDir.Granules()) != 1 || len(fromZip.Granules()) != 1 {
		t.Fatalf("expected one granule each, got %d and %d",
			len(fromDir.Granules()), len(fromZip.Granules()))
	}
	if fromDir.Granules()[0].ID != fromZip.Granules()[0].ID {
		t.Errorf("granule ID differs: %q vs %q",
			fromDir.Granules()[0].ID, fromZip.Granules()[0].ID)
	}
	if !fromDir.StartTime().Equal(fromZip.StartTime()) {
		t.Errorf("start time differs: %v vs %v", fromDir.StartTime(), fromZip.StartTime())
	}
}

func TestOpenProduct_NotSAFE(t *testing.T) {
	ctx := context.Background()

	// A directory without product metadata.
	if _, err := OpenProduct(ctx, t.TempDir()); !errors.Is(err, ErrNotSAFE) {
		t.Errorf("expected ErrNotSAFE, got: %v", err)
	}

	// A regular file that is neither directory nor zip.
	plain := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenProduct(ctx, plain); !errors.Is(err, ErrNotSAFE) {
		t.Errorf("expected ErrNotSAFE, got: %v", err)
	}

	// A missing path.
	if _, err := OpenProduct(ctx, filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestOpenProduct_FailedOpenReleasesZip(t *testing.T) {
	ctx := context.Background()

	// A structurally valid zip with no product metadata inside.
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	ew, err := w.Create("S2A_TEST.SAFE/GRANULE/readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ew.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	before := openFileCount(t)
	for i := 0; i < 20; i++ {
		if _, err := OpenProduct(ctx, zipPath); !errors.Is(err, ErrNotSAFE) {
			t.Fatalf("expected ErrNotSAFE, got: %v", err)
		}
	}
	if after := openFileCount(t); after > before {
		t.Errorf("expected failed opens to release the zip, file count went %d -> %d", before, after)
	}
}

func openFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("file handle accounting needs /proc")
	}
	return len(entries)
}

func TestMemArchive_Basics(t *testing.T) {
	ctx := context.Background()
	archive := NewMemArchive()
	archive.Add("a/b.xml", []byte("one"))
	archive.Add("a/c.xml", []byte("two"))

	listed, err := archive.List(ctx, "a/")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 || listed[0] != "a/b.xml" {
		t.Fatalf("expected sorted listing, got %v", listed)
	}

	rc, err := archive.Open(ctx, "a/b.xml")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "one" {
		t.Errorf("expected %q, got %q", "one", data)
	}

	if _, err := archive.Open(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
