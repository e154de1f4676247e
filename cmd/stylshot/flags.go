package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/stylshot/pkg/stylshot"
)

const usage = `USAGE:
  stylshot [options] <url> <output_filename> <css_file>
  stylshot [options] -l <jobs.txt>

INPUT:
  <url>                          page to capture (http, https, file or data URL)
  <output_filename>              image to write (.png, .jpg, .jpeg, .webp)
  <css_file>                     stylesheet injected into the page before capture
  -l,   --list                   file with one "<url> <output_filename> <css_file>" job per line

CONFIGURATIONS:
  -to,  --timeout                navigation timeout                                      (Default: 30s)
  -dc,  --delay-capture          delay between stylesheet injection and capture          (Default: 200ms)
  -e,   --engine                 browser driver: rod or chromedp                         (Default: rod)
  -b,   --browser                path to the chrome binary                               (Default: auto)
  -r,   --remote                 DevTools URL of a running browser                       (Default: launch)
  -ns,  --no-sandbox             run chrome without sandbox                              (Default: false)
  -ua,  --user-agent             specify user agent                                      (Default: Chrome UA)
  -uh,  --use-http2              use HTTP2                                               (Default: false)
  -rce, --respect-cert-err       respect certificate errors                              (Default: false)
  -c,   --concurrency            number of concurrent captures with --list               (Default: 4)
        --stale                  with --list, skip jobs whose output is newer than the css
  -ad,  --avoid-duplicates       with --list, do not save near-identical outputs          (Default: false)
  -dt,  --duplicate-threshold    similarity percentage (1-100) counted as duplicate      (Default: 96)

OUTPUT:
  -it,  --imprint                add the page origin below png outputs                   (Default: false)
  -z,   --crush                  recompress png outputs                                  (Default: false)
        --debug                  enable debug mode
        --version                display version
`

// errDone is returned after help or version output.
var errDone = errors.New("done")

func (cli *cli) parseFlags(args []string) error {
	var help, ver bool

	options := stylshot.NewOptions()
	cliDefaults := newCLIOptions()

	fs := flag.NewFlagSet("stylshot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// INPUT
	fs.StringVar(&cli.Infile, "list", "", "")
	fs.StringVar(&cli.Infile, "l", "", "")

	// CONFIGURATIONS
	fs.DurationVar(&cli.Options.Timeout, "timeout", options.Timeout, "")
	fs.DurationVar(&cli.Options.Timeout, "to", options.Timeout, "")
	fs.DurationVar(&cli.Options.SettleDelay, "delay-capture", options.SettleDelay, "")
	fs.DurationVar(&cli.Options.SettleDelay, "dc", options.SettleDelay, "")
	fs.StringVar(&cli.EngineName, "engine", cliDefaults.EngineName, "")
	fs.StringVar(&cli.EngineName, "e", cliDefaults.EngineName, "")
	fs.StringVar(&cli.Browser.Bin, "browser", "", "")
	fs.StringVar(&cli.Browser.Bin, "b", "", "")
	fs.StringVar(&cli.Browser.ControlURL, "remote", "", "")
	fs.StringVar(&cli.Browser.ControlURL, "r", "", "")
	fs.BoolVar(&cli.Browser.NoSandbox, "no-sandbox", false, "")
	fs.BoolVar(&cli.Browser.NoSandbox, "ns", false, "")
	fs.StringVar(&cli.Browser.UserAgent, "user-agent", cliDefaults.UserAgent, "")
	fs.StringVar(&cli.Browser.UserAgent, "ua", cliDefaults.UserAgent, "")
	fs.BoolVar(&cli.Browser.UseHTTP2, "use-http2", false, "")
	fs.BoolVar(&cli.Browser.UseHTTP2, "uh", false, "")
	fs.BoolVar(&cli.Browser.RespectCertificateErrors, "respect-cert-err", false, "")
	fs.BoolVar(&cli.Browser.RespectCertificateErrors, "rce", false, "")
	fs.IntVar(&cli.Concurrency, "concurrency", cliDefaults.Concurrency, "")
	fs.IntVar(&cli.Concurrency, "c", cliDefaults.Concurrency, "")
	fs.BoolVar(&cli.Stale, "stale", false, "")
	fs.BoolVar(&cli.AvoidDuplicates, "avoid-duplicates", false, "")
	fs.BoolVar(&cli.AvoidDuplicates, "ad", false, "")
	fs.IntVar(&cli.DuplicateThreshold, "duplicate-threshold", cliDefaults.DuplicateThreshold, "")
	fs.IntVar(&cli.DuplicateThreshold, "dt", cliDefaults.DuplicateThreshold, "")

	// OUTPUT
	fs.BoolVar(&cli.Options.Imprint, "imprint", false, "")
	fs.BoolVar(&cli.Options.Imprint, "it", false, "")
	fs.BoolVar(&cli.Options.Crush, "crush", false, "")
	fs.BoolVar(&cli.Options.Crush, "z", false, "")
	fs.BoolVar(&cli.Debug, "debug", false, "")
	fs.BoolVar(&help, "help", false, "")
	fs.BoolVar(&help, "h", false, "")
	fs.BoolVar(&ver, "version", false, "")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(cli.out, usage)
			return errDone
		}
		return err
	}

	if cli.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if help {
		fmt.Fprint(cli.out, usage)
		return errDone
	}

	if ver {
		fmt.Fprintln(cli.out, "stylshot", version)
		return errDone
	}

	positional := fs.Args()
	if cli.hasInfile() {
		if len(positional) != 0 {
			return fmt.Errorf("unexpected arguments with --list: %s", strings.Join(positional, " "))
		}
	} else {
		if len(positional) != 3 {
			return fmt.Errorf("expected <url> <output_filename> <css_file>, got %d argument(s)", len(positional))
		}
		cli.Request = stylshot.Request{
			URL:        positional[0],
			OutputPath: positional[1],
			CSSPath:    positional[2],
		}
	}

	if cli.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", cli.Concurrency)
	}

	if cli.AvoidDuplicates && (cli.DuplicateThreshold < 1 || cli.DuplicateThreshold > 100) {
		return fmt.Errorf("invalid duplicate threshold: %d. Must be between 1 and 100", cli.DuplicateThreshold)
	}

	return nil
}
