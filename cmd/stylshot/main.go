package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/stylshot/pkg/stylshot"
)

const (
	author  = "@danielantonsen"
	version = "0.1.0"
)

type cli struct {
	*stylshot.Screener
	Request            stylshot.Request
	Browser            stylshot.BrowserOptions
	EngineName         string
	Infile             string
	Concurrency        int
	Stale              bool
	AvoidDuplicates    bool
	DuplicateThreshold int
	Debug              bool

	out   io.Writer
	outMu sync.Mutex
}

type cliOptions struct {
	EngineName         string
	UserAgent          string
	Concurrency        int
	DuplicateThreshold int
}

func newCLIOptions() *cliOptions {
	return &cliOptions{
		EngineName:         "rod",
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
		Concurrency:        4,
		DuplicateThreshold: 96,
	}
}

func newCLI(out io.Writer) *cli {
	cli := &cli{
		Screener: stylshot.NewScreenerWithOptions(nil, stylshot.NewOptions()),
		out:      out,
	}
	cli.Options.Console = cli.console
	return cli
}

func init() {
	log.Init("stylshot")
}

func main() {
	cli := newCLI(os.Stdout)
	if err := cli.parseFlags(os.Args[1:]); err != nil {
		if errors.Is(err, errDone) {
			os.Exit(0)
		}
		log.Errorf("%v", err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(stylshot.KindArgument.ExitCode())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.run(ctx)
	stop()
	os.Exit(code)
}

// run performs the capture(s) and returns the process exit code.
func (cli *cli) run(ctx context.Context) int {
	if cli.Engine == nil {
		engine, err := newEngine(cli.EngineName, cli.Browser)
		if err != nil {
			log.Errorf("%v", err)
			return stylshot.KindArgument.ExitCode()
		}
		cli.Engine = engine
	}

	if cli.hasInfile() {
		return cli.runList(ctx)
	}
	return stylshot.ExitCode(cli.capture(ctx, cli.Request))
}

func newEngine(name string, options stylshot.BrowserOptions) (stylshot.Engine, error) {
	switch name {
	case "rod":
		return stylshot.NewRodEngine(options), nil
	case "chromedp":
		return stylshot.NewChromedpEngine(options), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

// capture runs a single request and logs the outcome.
func (cli *cli) capture(ctx context.Context, req stylshot.Request) error {
	result, err := cli.Capture(ctx, req)
	if err != nil {
		handleCaptureError(req, err)
		return err
	}
	log.Resultf("Screenshot of %s saved to %s", result.LandingURL, req.OutputPath)
	return nil
}

func handleCaptureError(req stylshot.Request, err error) {
	switch stylshot.KindOf(err) {
	case stylshot.KindNavigation:
		log.Errorf("Unable to load the address %s: %s", req.URL, unwrapError(err))
	case stylshot.KindStylesheet:
		log.Errorf("Unable to read stylesheet %s: %s", req.CSSPath, unwrapError(err))
	case stylshot.KindArgument:
		log.Errorf("Invalid capture request: %v", err)
	default:
		log.Errorf("Error capturing screenshot for %s: %v", req.URL, err)
	}
}

func unwrapError(err error) string {
	rootErr := err
	for {
		unwrappedErr := errors.Unwrap(rootErr)
		if unwrappedErr == nil {
			break
		}
		rootErr = unwrappedErr
	}
	return rootErr.Error()
}

// console forwards page console output to stdout.
func (cli *cli) console(msg string) {
	cli.outMu.Lock()
	defer cli.outMu.Unlock()
	fmt.Fprintln(cli.out, "LOG: page.evaluate: "+msg)
}

func (cli *cli) hasInfile() bool {
	return cli.Infile != ""
}
