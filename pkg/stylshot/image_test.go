package stylshot

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestAddTextToImage(t *testing.T) {
	src := Image(solidPNG(t, 200, 100, color.RGBA{0, 0, 255, 255}))

	out, err := src.AddTextToImage("https://example.com:443/path")
	if err != nil {
		t.Fatalf("AddTextToImage failed: %v", err)
	}

	w, h, err := out.Size()
	if err != nil {
		t.Fatalf("Failed to decode image: %v", err)
	}
	if w != 200 || h != 100+41 {
		t.Errorf("Expected 200x141 image, got %dx%d", w, h)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	if r != 0 || g != 0 || b>>8 != 255 {
		t.Errorf("Expected original pixels to be kept, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestAddTextToImageRejectsNonPNG(t *testing.T) {
	if _, err := Image("not an image").AddTextToImage("https://example.com"); err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestCrushKeepsPixels(t *testing.T) {
	src := Image(solidPNG(t, 64, 64, color.RGBA{10, 20, 30, 255}))

	out, err := src.Crush()
	if err != nil {
		t.Fatalf("Crush failed: %v", err)
	}
	if len(out) > len(src) {
		t.Errorf("Expected crushed image to be no larger than %d bytes, got %d", len(src), len(out))
	}

	a, _ := png.Decode(bytes.NewReader(src))
	b, _ := png.Decode(bytes.NewReader(out))
	for _, p := range [][2]int{{0, 0}, {63, 63}, {31, 17}} {
		if a.At(p[0], p[1]) != b.At(p[0], p[1]) {
			ar, ag, ab, aa := a.At(p[0], p[1]).RGBA()
			br, bg, bb, ba := b.At(p[0], p[1]).RGBA()
			if ar != br || ag != bg || ab != bb || aa != ba {
				t.Errorf("Pixel %v changed after crush", p)
			}
		}
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "shot.png")

	if err := Image("first").WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := Image("second").WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "second" {
		t.Errorf("Expected file to be replaced, got %q", content)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestWriteFileRejectsEmpty(t *testing.T) {
	if err := Image(nil).WriteFile(filepath.Join(t.TempDir(), "x.png")); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestIsSimilarToAny(t *testing.T) {
	a := Image(solidPNG(t, 50, 50, color.White))

	if !a.IsSimilarToAny([]Image{a}, 96) {
		t.Error("Expected identical images to be similar")
	}
	if a.IsSimilarToAny(nil, 96) {
		t.Error("Expected no match against empty list")
	}
}
