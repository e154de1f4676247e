package stylshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/root4loot/goutils/log"
)

// Screener captures pages with an injected stylesheet.
type Screener struct {
	Engine  Engine
	Options Options

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time
}

// Request describes one screenshot job.
type Request struct {
	URL        string // page to load
	OutputPath string // image file to write; extension selects the format
	CSSPath    string // stylesheet injected after load
}

// Result contains the outcome of a successful capture.
type Result struct {
	Request    Request
	Format     Format
	LandingURL string
	Image      Image
}

// Options contains the options for capturing screenshots.
type Options struct {
	SettleDelay time.Duration // wait between injection and capture
	Timeout     time.Duration // bound on navigation and load
	Imprint     bool          // add the URL origin below the image (png only)
	Crush       bool          // recompress png output at best compression
	Console     ConsoleFunc   // receives page console output
}

// NewOptions returns an Options struct initialized with default values.
func NewOptions() Options {
	return Options{
		SettleDelay: 200 * time.Millisecond,
		Timeout:     30 * time.Second,
	}
}

// NewScreener creates a Screener with default options.
func NewScreener(engine Engine) *Screener {
	return NewScreenerWithOptions(engine, NewOptions())
}

// NewScreenerWithOptions creates a Screener with the provided options.
func NewScreenerWithOptions(engine Engine, options Options) *Screener {
	return &Screener{Engine: engine, Options: options, after: time.After}
}

func Init() {
	log.Init("stylshot")
	log.SetLevel(log.InfoLevel)
}

// SetDebug enables or disables debug logging.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Validate checks the request and returns the output format.
func (r Request) Validate() (Format, error) {
	if r.URL == "" || r.OutputPath == "" || r.CSSPath == "" {
		return "", newError(KindArgument, "validate request", errors.New("url, output file and css file are required"))
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return "", newError(KindArgument, "parse url", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", newError(KindArgument, "parse url", fmt.Errorf("missing host in %q", r.URL))
		}
	case "file", "data":
	default:
		return "", newError(KindArgument, "parse url", fmt.Errorf("unsupported scheme in %q", r.URL))
	}

	format, ok := FormatFromPath(r.OutputPath)
	if !ok {
		return "", newError(KindArgument, "output format", fmt.Errorf("unsupported image extension in %q", r.OutputPath))
	}
	return format, nil
}

// ReadStylesheet reads the whole CSS file.
func ReadStylesheet(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", newError(KindStylesheet, "read "+path, err)
	}
	return string(b), nil
}

// Capture loads req.URL, injects the stylesheet at req.CSSPath, waits the
// settle delay and writes the capture to req.OutputPath. The output file is
// only touched once the image has been rendered.
func (s *Screener) Capture(ctx context.Context, req Request) (*Result, error) {
	result, err := s.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := result.Image.WriteFile(req.OutputPath); err != nil {
		return nil, newError(KindRender, "write "+req.OutputPath, err)
	}
	return result, nil
}

// Render runs the capture sequence without writing the output file.
func (s *Screener) Render(ctx context.Context, req Request) (*Result, error) {
	format, err := req.Validate()
	if err != nil {
		return nil, err
	}

	stylesheet, err := ReadStylesheet(req.CSSPath)
	if err != nil {
		return nil, err
	}
	log.Debugf("Read %d bytes of css from %s", len(stylesheet), req.CSSPath)

	page, err := s.Engine.Open(ctx, DefaultViewport, s.Options.Console)
	if err != nil {
		return nil, newError(KindEngine, "open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debugf("Error closing page for %s: %v", req.URL, err)
		}
	}()

	navCtx := ctx
	if s.Options.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.Options.Timeout)
		defer cancel()
	}

	log.Debugf("Attempting capture on %s", req.URL)
	if err := page.Navigate(navCtx, req.URL); err != nil {
		return nil, newError(KindNavigation, "navigate "+req.URL, err)
	}

	if err := page.InjectStylesheet(ctx, stylesheet); err != nil {
		return nil, newError(KindInjection, "inject "+req.CSSPath, err)
	}

	if err := s.settle(ctx); err != nil {
		return nil, newError(KindRender, "settle", err)
	}

	image, err := page.Render(ctx, format, DefaultViewport)
	if err != nil {
		return nil, newError(KindRender, "capture "+req.URL, err)
	}

	result := &Result{
		Request:    req,
		Format:     format,
		LandingURL: page.URL(),
		Image:      image,
	}

	if err := s.postProcess(result); err != nil {
		return nil, newError(KindRender, "post-process "+req.OutputPath, err)
	}
	return result, nil
}

func (s *Screener) settle(ctx context.Context) error {
	if s.Options.SettleDelay <= 0 {
		return ctx.Err()
	}
	after := s.after
	if after == nil {
		after = time.After
	}
	select {
	case <-after(s.Options.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Screener) postProcess(result *Result) error {
	if result.Format != FormatPNG {
		if s.Options.Imprint || s.Options.Crush {
			log.Debugf("Skipping png post-processing for %s output", result.Format)
		}
		return nil
	}

	var err error
	if s.Options.Imprint {
		result.Image, err = result.Image.AddTextToImage(result.Request.URL)
		if err != nil {
			return err
		}
	}
	if s.Options.Crush {
		result.Image, err = result.Image.Crush()
		if err != nil {
			return err
		}
	}
	return nil
}
