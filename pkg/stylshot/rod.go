package stylshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
	"github.com/ysmood/gson"
)

// BrowserOptions configures how an engine reaches Chrome.
type BrowserOptions struct {
	Bin                      string // chrome binary; looked up when empty
	ControlURL               string // DevTools URL of a running browser; launches one when empty
	NoSandbox                bool   // pass --no-sandbox
	UserAgent                string // user agent override
	RespectCertificateErrors bool   // fail on certificate errors
	UseHTTP2                 bool   // keep HTTP2 enabled
}

// RodEngine drives Chrome through go-rod.
type RodEngine struct {
	Options BrowserOptions
}

// NewRodEngine returns a RodEngine with the provided browser options.
func NewRodEngine(options BrowserOptions) *RodEngine {
	return &RodEngine{Options: options}
}

type rodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stop     context.CancelFunc
}

// Open launches (or connects to) Chrome and opens a blank page.
func (e *RodEngine) Open(ctx context.Context, vp Viewport, console ConsoleFunc) (Page, error) {
	p := &rodPage{}

	controlURL := e.Options.ControlURL
	if controlURL == "" {
		bin := e.Options.Bin
		if bin == "" {
			bin, _ = launcher.LookPath()
		}

		l := launcher.New().
			Context(ctx).
			Headless(true).
			NoSandbox(e.Options.NoSandbox)

		if bin != "" {
			l = l.Bin(bin)
		}

		if e.Options.UserAgent != "" {
			l.Set("user-agent", e.Options.UserAgent)
		}

		if !e.Options.RespectCertificateErrors {
			l.Set("ignore-certificate-errors", "true")
		}

		if !e.Options.UseHTTP2 {
			l.Set("disable-http2", "true")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rod: launch: %w", err)
		}
		controlURL = u
		p.launcher = l
		log.Debugf("Launched chrome at %s", controlURL)
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("rod: connect: %w", err)
	}
	p.browser = browser

	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("rod: new page: %w", err)
	}
	p.page = page

	if e.Options.ControlURL != "" && e.Options.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.Options.UserAgent}); err != nil {
			p.Close()
			return nil, fmt.Errorf("rod: user agent: %w", err)
		}
	}

	viewport := &proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}
	if err := page.SetViewport(viewport); err != nil {
		p.Close()
		return nil, fmt.Errorf("rod: viewport: %w", err)
	}

	if console != nil {
		listenCtx, stop := context.WithCancel(ctx)
		p.stop = stop
		wait := page.Context(listenCtx).EachEvent(func(ev *proto.RuntimeConsoleAPICalled) {
			console(rodConsoleText(ev.Args))
		})
		go wait()
	}

	return p, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) InjectStylesheet(ctx context.Context, css string) error {
	_, err := p.page.Context(ctx).Eval(insertStyleJS, css)
	return err
}

func (p *rodPage) Render(ctx context.Context, format Format, clip Viewport) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormat(format),
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  float64(clip.Width),
			Height: float64(clip.Height),
			Scale:  1,
		},
	}
	if format != FormatPNG {
		req.Quality = gson.Int(screenshotQuality)
	}
	return p.page.Context(ctx).Screenshot(false, req)
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Close() error {
	if p.stop != nil {
		p.stop()
	}
	var err error
	if p.page != nil {
		err = p.page.Close()
	}
	p.cleanup()
	return err
}

// cleanup shuts down the browser only when this page launched it.
func (p *rodPage) cleanup() {
	if p.browser != nil && p.launcher != nil {
		if err := p.browser.Close(); err != nil {
			log.Debugf("Error closing browser: %v", err)
		}
	}
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher.Cleanup()
	}
}

func rodConsoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg.Value.Nil():
			parts = append(parts, arg.Description)
		case arg.Type == proto.RuntimeRemoteObjectTypeString:
			parts = append(parts, arg.Value.Str())
		default:
			parts = append(parts, arg.Value.String())
		}
	}
	return strings.Join(parts, " ")
}
