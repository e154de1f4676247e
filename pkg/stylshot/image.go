package stylshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/glaslos/ssdeep"
	"github.com/golang/freetype/truetype"
	"github.com/root4loot/goutils/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	_ "golang.org/x/image/webp"
)

// Image holds encoded image bytes as produced by the engine.
type Image []byte

// WriteFile writes the image to path through a temporary file in the same
// directory, so a failed write never leaves a partial file behind.
func (imgB Image) WriteFile(path string) error {
	if len(imgB) == 0 {
		return fmt.Errorf("empty image")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".stylshot-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(imgB); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Size decodes the image header and returns its pixel dimensions.
func (imgB Image) Size() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imgB))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// AddTextToImage adds the origin of rawURL to the bottom of a png image.
func (imgB Image) AddTextToImage(rawURL string) (Image, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	host := parsedURL.Host
	if strings.Contains(host, ":") {
		hostWithoutPort, port, _ := strings.Cut(host, ":")
		if (parsedURL.Scheme == "http" && port == "80") || (parsedURL.Scheme == "https" && port == "443") {
			host = hostWithoutPort
		}
	}

	printURL := parsedURL.Scheme + "://" + host
	if host == "" {
		printURL = rawURL
	}

	img, err := png.Decode(bytes.NewReader(imgB))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	const padding = 20
	const borderSize = 1

	w := img.Bounds().Dx()
	h := img.Bounds().Dy() + padding*2 + borderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(img, 0, 0)

	yLine := float64(img.Bounds().Dy())
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine, float64(w), float64(h)-yLine)
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(float64(borderSize))
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()

	face, err := loadFont()
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(face)
	dc.DrawStringAnchored(printURL, float64(w)/2, yLine+float64(padding), 0.5, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// Crush re-encodes a png image at the best compression level. Pixels are
// unchanged; the smaller of the two encodings is returned.
func (imgB Image) Crush() (Image, error) {
	img, err := png.Decode(bytes.NewReader(imgB))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if buf.Len() >= len(imgB) {
		return imgB, nil
	}
	log.Debugf("Crushed image from %d to %d bytes", len(imgB), buf.Len())
	return buf.Bytes(), nil
}

// Similarity returns the ssdeep match score (0-100) between two images.
func (imgB Image) Similarity(other Image) (int, error) {
	if bytes.Equal(imgB, other) {
		return 100, nil
	}

	hash1, err := ssdeep.FuzzyBytes(imgB)
	if err != nil {
		return 0, err
	}
	hash2, err := ssdeep.FuzzyBytes(other)
	if err != nil {
		return 0, err
	}
	return ssdeep.Distance(hash1, hash2)
}

// IsSimilarToAny reports whether the image scores at least threshold
// against any of images.
func (imgB Image) IsSimilarToAny(images []Image, threshold int) bool {
	for _, other := range images {
		score, err := imgB.Similarity(other)
		if err != nil {
			log.Debugf("Could not compare images: %v", err)
			continue
		}
		if score >= threshold {
			log.Debugf("Image is similar to a previous capture with a score of %d", score)
			return true
		}
	}
	return false
}

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

// loadFont returns a new face per call; faces are not safe for concurrent use.
func loadFont() (font.Face, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse font: %w", fontErr)
	}
	return truetype.NewFace(fontTTF, &truetype.Options{Size: 14}), nil
}
