package stylshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

// ChromedpEngine drives Chrome through chromedp.
type ChromedpEngine struct {
	Options BrowserOptions
}

// NewChromedpEngine returns a ChromedpEngine with the provided browser options.
func NewChromedpEngine(options BrowserOptions) *ChromedpEngine {
	return &ChromedpEngine{Options: options}
}

type chromedpPage struct {
	ctx    context.Context // tab context
	cancel func()
}

// GetCustomFlags returns the exec allocator flags derived from the options.
func (e *ChromedpEngine) GetCustomFlags() []chromedp.ExecAllocatorOption {
	var customFlags []chromedp.ExecAllocatorOption

	customFlags = append(customFlags, chromedp.Flag("headless", true))

	if e.Options.Bin != "" {
		customFlags = append(customFlags, chromedp.ExecPath(e.Options.Bin))
	}

	if e.Options.NoSandbox {
		customFlags = append(customFlags, chromedp.NoSandbox)
	}

	if !e.Options.RespectCertificateErrors {
		customFlags = append(customFlags, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !e.Options.UseHTTP2 {
		customFlags = append(customFlags, chromedp.Flag("disable-http2", true))
	}

	if e.Options.UserAgent != "" {
		customFlags = append(customFlags, chromedp.UserAgent(e.Options.UserAgent))
	}

	return customFlags
}

// Open allocates a browser (or attaches to ControlURL) and opens a tab.
func (e *ChromedpEngine) Open(ctx context.Context, vp Viewport, console ConsoleFunc) (Page, error) {
	var allocator context.Context
	var cancelAllocator context.CancelFunc

	if e.Options.ControlURL != "" {
		allocator, cancelAllocator = chromedp.NewRemoteAllocator(ctx, e.Options.ControlURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], e.GetCustomFlags()...)
		allocator, cancelAllocator = chromedp.NewExecAllocator(ctx, opts...)
	}

	cctx, cancelContext := chromedp.NewContext(allocator)
	p := &chromedpPage{
		ctx: cctx,
		cancel: func() {
			cancelContext()
			cancelAllocator()
		},
	}

	// The first Run starts the browser and creates the tab.
	if err := chromedp.Run(cctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("chromedp: start: %w", err)
	}
	log.Debugf("Opened chromedp tab")

	if console != nil {
		chromedp.ListenTarget(cctx, func(ev interface{}) {
			if msg, ok := ev.(*runtime.EventConsoleAPICalled); ok {
				console(chromedpConsoleText(msg.Args))
			}
		})
	}

	if err := p.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		p.cancel()
		return nil, fmt.Errorf("chromedp: viewport: %w", err)
	}

	return p, nil
}

// run executes actions on the tab, aborting when ctx is done.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) InjectStylesheet(ctx context.Context, css string) error {
	arg, err := json.Marshal(css)
	if err != nil {
		return err
	}

	expression := fmt.Sprintf("(function () { (%s)(%s); return true; })()", insertStyleJS, arg)
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(expression, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("stylesheet was not inserted")
	}
	return nil
}

func (p *chromedpPage) Render(ctx context.Context, format Format, clip Viewport) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormat(format)).
			WithClip(&cdppage.Viewport{
				X:      0,
				Y:      0,
				Width:  float64(clip.Width),
				Height: float64(clip.Height),
				Scale:  1,
			})
		if format != FormatPNG {
			params = params.WithQuality(screenshotQuality)
		}

		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	return buf, err
}

func (p *chromedpPage) URL() string {
	var location string
	if err := chromedp.Run(p.ctx, chromedp.Location(&location)); err != nil {
		return ""
	}
	return location
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

func chromedpConsoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg.Value) == 0 {
			parts = append(parts, arg.Description)
			continue
		}
		var s string
		if arg.Type == runtime.TypeString && json.Unmarshal(arg.Value, &s) == nil {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, string(arg.Value))
	}
	return strings.Join(parts, " ")
}
