package stylshot

import (
	"context"
	"path/filepath"
	"strings"
)

// Viewport is a rectangle size in CSS pixels. Captures always start at (0,0).
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport is used for both layout and the capture clip.
var DefaultViewport = Viewport{Width: 1000, Height: 1000}

// Format is the image encoding requested from the engine.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// FormatFromPath derives the image format from the file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, true
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".webp":
		return FormatWebP, true
	}
	return "", false
}

// ConsoleFunc receives console messages emitted inside the page.
type ConsoleFunc func(msg string)

// Engine opens pages on a headless browser.
type Engine interface {
	// Open starts (or connects to) a browser and returns a blank page laid
	// out at vp. console, if non-nil, receives the page's console output
	// until the page is closed.
	Open(ctx context.Context, vp Viewport, console ConsoleFunc) (Page, error)
}

// Page is a single loaded document owned by one capture.
type Page interface {
	// Navigate loads url and returns once the load event fired. A non-nil
	// error means the address could not be loaded.
	Navigate(ctx context.Context, url string) error
	// InjectStylesheet appends a style element holding css to the document.
	InjectStylesheet(ctx context.Context, css string) error
	// Render captures the clip rectangle anchored at (0,0).
	Render(ctx context.Context, format Format, clip Viewport) ([]byte, error)
	// URL is the address currently loaded, after redirects.
	URL() string
	// Close releases the page and the browser behind it.
	Close() error
}

// insertStyleJS runs inside the page. The stylesheet arrives as an argument.
const insertStyleJS = `(stylesheet) => {
	const element = document.createElement('style');
	element.type = 'text/css';
	element.textContent = stylesheet;
	(document.head || document.documentElement).appendChild(element);
}`

// screenshotQuality is used for lossy formats.
const screenshotQuality = 90
