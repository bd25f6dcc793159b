package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/crawl-loader/pkg/loader"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

type fetchOptions struct {
	strategy    string
	profile     string
	initiator   string
	outDir      string
	inputFile   string
	maxSize     int64
	noBlacklist bool
}

// fetchResult is the outcome of one URL of a batch
type fetchResult struct {
	url   string
	resp  *models.Response
	saved string
	err   error
}

func newFetchCmd(global *globalOptions) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch [urls...]",
		Short: "Load one or more URLs through the loader",
		Long: `Load URLs through the dispatcher, honoring the cache strategy, the
politeness interval and the blacklist. Without --strategy and --max-size
each URL is loaded with the settings of its crawl profile.

Examples:
  loader fetch https://example.com/
  loader fetch --strategy cacheonly https://example.com/
  loader fetch --out ./downloads ftp://ftp.example.org/pub/README
  loader fetch --input urls.txt --profile small`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), cmd.OutOrStdout(), global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Cache strategy: nocache, iffresh, ifexist or cacheonly")
	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Crawl profile handle (defaults to default_profile)")
	cmd.Flags().StringVar(&opts.initiator, "initiator", loader.DefaultInitiator, "Initiator id recorded with journaled failures")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Write each loaded body into this directory")
	cmd.Flags().StringVarP(&opts.inputFile, "input", "i", "", "Read additional URLs from this file, one per line")
	cmd.Flags().Int64Var(&opts.maxSize, "max-size", -1, "Download limit in bytes; negative uses the protocol limit, 0 is unlimited")
	cmd.Flags().BoolVar(&opts.noBlacklist, "no-blacklist", false, "Skip the blacklist check")

	return cmd
}

func runFetch(ctx context.Context, out io.Writer, global *globalOptions, opts *fetchOptions, args []string) error {
	var strategy models.CacheStrategy
	if opts.strategy != "" {
		parsed, err := models.ParseCacheStrategy(opts.strategy)
		if err != nil {
			return err
		}
		strategy = parsed
	}

	rawURLs := append([]string(nil), args...)
	if opts.inputFile != "" {
		fromFile, err := readURLFile(opts.inputFile)
		if err != nil {
			return err
		}
		rawURLs = append(rawURLs, fromFile...)
	}
	if len(rawURLs) == 0 {
		return fmt.Errorf("no URLs given")
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	a, err := openApp(ctx, global)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]fetchResult, len(rawURLs))
	sem := semaphore.NewWeighted(int64(a.cfg.BatchConcurrency))
	var g errgroup.Group

	for i, raw := range rawURLs {
		results[i].url = raw
		_, u, err := parse.ParseAndNormalize(raw)
		if err != nil {
			results[i].err = fmt.Errorf("invalid URL: %w", err)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].err = utils.WrapErrorf(utils.ErrShutdownInProgress, "batch cancelled")
			continue
		}
		req := a.loader.NewRequest(u, opts.initiator, opts.profile)
		g.Go(func() error {
			defer sem.Release(1)
			results[i].resp, results[i].err = opts.load(ctx, a.loader, req, strategy)
			if results[i].err == nil && opts.outDir != "" {
				results[i].saved, results[i].err = saveBody(opts.outDir, u, results[i].resp)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			label := "FAIL"
			if utils.IsTerminal(r.err) {
				label = "REJECT"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%v\n", label, utils.CategorizeError(r.err), r.url, r.err)
			continue
		}
		fmt.Fprintln(out, describeResult(r))
	}

	stats := a.loader.CacheStats()
	a.log.Infof("Batch done: %d loaded, %d failed, cache hit rate %.2f", len(results)-failed, failed, stats.HitRate)
	if failed > 0 {
		return fmt.Errorf("%d of %d loads failed", failed, len(results))
	}
	return nil
}

// load uses the crawl profile's settings unless the strategy or size limit is overridden
func (o *fetchOptions) load(ctx context.Context, l *loader.Loader, req *models.Request, strategy models.CacheStrategy) (*models.Response, error) {
	if strategy == "" && o.maxSize < 0 {
		return l.LoadWithProfile(ctx, req, !o.noBlacklist)
	}
	if strategy == "" {
		strategy = models.CacheStrategyIfFresh
	}
	maxSize := o.maxSize
	if maxSize < 0 {
		maxSize = l.ProtocolMaxFileSize(req.URL)
	}
	return l.Load(ctx, req, strategy, maxSize, !o.noBlacklist)
}

func describeResult(r fetchResult) string {
	source := "net"
	if r.resp.FromCache {
		source = "cache"
	}
	line := fmt.Sprintf("OK\t%d\t%d\t%s\t%s\t%s", r.resp.StatusCode, r.resp.Size(), r.resp.MimeType(), source, r.resp.URL())
	if r.saved != "" {
		line += "\t-> " + r.saved
	}
	return line
}

// saveBody writes the response body below dir, named after the final URL
func saveBody(dir string, requested *url.URL, resp *models.Response) (string, error) {
	if resp.Content == nil {
		return "", nil
	}
	u := resp.URL()
	if u == nil {
		u = requested
	}
	name := utils.URLFilename(u)
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, resp.Content, 0644); err != nil {
		return "", fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, target, err)
	}
	return target, nil
}

// readURLFile returns the non-empty lines of path, skipping '#' comments
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open URL list: %w", utils.ErrFilesystem, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read URL list: %w", utils.ErrFilesystem, err)
	}
	return urls, nil
}
