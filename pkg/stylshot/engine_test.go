package stylshot

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

const testPage = `<!DOCTYPE html>
<html><head><title>stylshot</title></head>
<body><p>hello</p><script>console.log("page", 42)</script></body></html>`

func browserEngines(t *testing.T) map[string]Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary found")
	}
	options := BrowserOptions{Bin: bin, NoSandbox: os.Getuid() == 0}
	return map[string]Engine{
		"rod":      NewRodEngine(options),
		"chromedp": NewChromedpEngine(options),
	}
}

func TestEngineCapturesStyledPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	for name, engine := range browserEngines(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cssPath := writeCSS(t, dir, "html, body { margin: 0; background: rgb(255, 0, 0) !important; }")

			var mu sync.Mutex
			var lines []string

			options := NewOptions()
			options.Console = func(msg string) {
				mu.Lock()
				lines = append(lines, msg)
				mu.Unlock()
			}
			s := NewScreenerWithOptions(engine, options)

			first := Request{URL: srv.URL + "/", OutputPath: filepath.Join(dir, "a.png"), CSSPath: cssPath}
			result, err := s.Capture(context.Background(), first)
			if err != nil {
				t.Fatalf("Capture failed: %v", err)
			}

			w, h, err := result.Image.Size()
			if err != nil {
				t.Fatalf("Failed to decode image: %v", err)
			}
			if w != 1000 || h != 1000 {
				t.Errorf("Expected 1000x1000 image, got %dx%d", w, h)
			}

			img, err := png.Decode(bytes.NewReader(result.Image))
			if err != nil {
				t.Fatal(err)
			}
			r, g, b, _ := img.At(500, 900).RGBA()
			if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
				t.Errorf("Expected injected red background, got rgb(%d, %d, %d)", r>>8, g>>8, b>>8)
			}

			second := first
			second.OutputPath = filepath.Join(dir, "b.png")
			if _, err := s.Capture(context.Background(), second); err != nil {
				t.Fatalf("Second capture failed: %v", err)
			}
			a, _ := os.ReadFile(first.OutputPath)
			bb, _ := os.ReadFile(second.OutputPath)
			if !bytes.Equal(a, bb) {
				t.Error("Expected identical captures for identical inputs")
			}

			deadline := time.Now().Add(2 * time.Second)
			for {
				mu.Lock()
				n := len(lines)
				mu.Unlock()
				if n > 0 || time.Now().After(deadline) {
					break
				}
				time.Sleep(50 * time.Millisecond)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(lines) == 0 || lines[0] != "page 42" {
				t.Errorf("Expected console line %q, got %v", "page 42", lines)
			}
		})
	}
}

func TestEngineNavigationFailure(t *testing.T) {
	for name, engine := range browserEngines(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "shot.png")

			options := NewOptions()
			options.Timeout = 10 * time.Second
			s := NewScreenerWithOptions(engine, options)

			req := Request{URL: "http://does-not-exist.invalid/", OutputPath: out, CSSPath: writeCSS(t, dir, "p{}")}
			_, err := s.Capture(context.Background(), req)
			if KindOf(err) != KindNavigation {
				t.Fatalf("Expected navigation error, got %v", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("Expected no output file, got %v", err)
			}
		})
	}
}
