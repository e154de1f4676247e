package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/stylshot/pkg/stylshot"
)

// readJobs parses a job list: one "<url> <output> <css>" triple per line.
// Blank lines and lines starting with # are ignored.
func readJobs(path string) (jobs []stylshot.Request, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		req, err := parseJob(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		jobs = append(jobs, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func parseJob(line string) (stylshot.Request, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return stylshot.Request{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	target := fields[0]
	if !urlutil.HasScheme(target) && !strings.Contains(target, "://") && !strings.HasPrefix(target, "data:") {
		target = "http://" + target
	}

	return stylshot.Request{URL: target, OutputPath: fields[1], CSSPath: fields[2]}, nil
}

// isStale reports whether the output is missing or older than the stylesheet.
func isStale(req stylshot.Request) bool {
	out, err := os.Stat(req.OutputPath)
	if err != nil {
		return true
	}
	css, err := os.Stat(req.CSSPath)
	if err != nil {
		return true
	}
	return css.ModTime().After(out.ModTime())
}

// runList captures every job from the list with a bounded pool of workers.
// The exit code is the one of the first failing job, 0 when all succeed.
func (cli *cli) runList(ctx context.Context) int {
	jobs, err := readJobs(cli.Infile)
	if err != nil {
		log.Errorf("Error reading file: %v", err)
		return stylshot.KindArgument.ExitCode()
	}

	var (
		mu       sync.Mutex
		exitCode int
		written  []stylshot.Image
	)

	worker := func(req stylshot.Request) {
		if cli.Stale && !isStale(req) {
			log.Debugf("Skipping %s as it is up to date", req.OutputPath)
			return
		}

		if err := cli.captureJob(ctx, req, &mu, &written); err != nil {
			mu.Lock()
			if exitCode == 0 {
				exitCode = stylshot.ExitCode(err)
			}
			mu.Unlock()
		}
	}

	jobChannel := make(chan stylshot.Request)
	done := make(chan struct{})
	go processJobs(worker, cli.Concurrency, jobChannel, done)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		jobChannel <- job
	}
	close(jobChannel)
	<-done

	if exitCode == 0 && ctx.Err() != nil {
		log.Warnf("Interrupted: %v", ctx.Err())
		return 1
	}
	return exitCode
}

// captureJob renders one job, skipping the write when duplicates are avoided
// and a similar image has already been written.
func (cli *cli) captureJob(ctx context.Context, req stylshot.Request, mu *sync.Mutex, written *[]stylshot.Image) error {
	if !cli.AvoidDuplicates {
		return cli.capture(ctx, req)
	}

	result, err := cli.Render(ctx, req)
	if err != nil {
		handleCaptureError(req, err)
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if result.Image.IsSimilarToAny(*written, cli.DuplicateThreshold) {
		log.Warnf("Skipping %s as it is similar to a previous capture", req.OutputPath)
		return nil
	}

	if err := result.Image.WriteFile(req.OutputPath); err != nil {
		err = &stylshot.Error{Kind: stylshot.KindRender, Op: "write " + req.OutputPath, Err: err}
		handleCaptureError(req, err)
		return err
	}
	*written = append(*written, result.Image)

	log.Resultf("Screenshot of %s saved to %s", result.LandingURL, req.OutputPath)
	return nil
}

func processJobs(worker func(stylshot.Request), concurrency int, jobChannel <-chan stylshot.Request, done chan struct{}) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for job := range jobChannel {
		sem <- struct{}{}
		wg.Add(1)
		go func(j stylshot.Request) {
			defer func() { <-sem }()
			defer wg.Done()
			worker(j)
		}(job)
	}

	wg.Wait()
	close(done)
}
