package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/evermind-zz/hlsdl"
	"github.com/evermind-zz/hlsdl/utils"
)

var (
	option      hlsdl.Option
	cleanupFlag bool
)

func init() {
	option = *hlsdl.DefaultOptions
	cleanupFlag = option.CleanupSegmentsOnComplete == nil || *option.CleanupSegmentsOnComplete
}

// ProgressManager renders one progress bar for the single in-flight run,
// matching the teacher's per-description bar map but specialized to a
// single (done, total) segment counter instead of per-media byte counts.
type ProgressManager struct {
	bar *progressbar.ProgressBar
	mu  sync.Mutex
}

func NewProgressManager() *ProgressManager {
	return &ProgressManager{}
}

func (pm *ProgressManager) onProgress(done, total int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.bar == nil {
		pm.bar = progressbar.Default(int64(total), "segments")
	}
	pm.bar.Set(done)
}

func (pm *ProgressManager) finish() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.bar != nil {
		pm.bar.Finish()
	}
}

func createRootCommand() *cobra.Command {
	var headerFlags []string
	var quality string
	cmd := &cobra.Command{
		Use:   "hlsdl [URL]",
		Short: "An HLS media downloader",
		Long:  `hlsdl - fetch, decrypt and concatenate HLS media segments into a single file`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := processHeaders(headerFlags); err != nil {
				return err
			}
			if cmd.Flags().Changed("cleanup") {
				option.CleanupSegmentsOnComplete = &cleanupFlag
			}
			return runRootCommand(cmd, strings.TrimSpace(args[0]), quality)
		},
	}
	setupFlags(cmd, &headerFlags, &quality)
	return cmd
}

func runRootCommand(cmd *cobra.Command, url string, quality string) error {
	if url == "" {
		return fmt.Errorf("a playlist URL is required")
	}
	if !utils.IsValidURL(url) {
		return fmt.Errorf("invalid playlist URL: %s", url)
	}

	processor := hlsdl.NewProcessor(option)

	var progressManager *ProgressManager
	if !option.Silent {
		progressManager = NewProgressManager()
		processor.OnProgress = progressManager.onProgress
		defer progressManager.finish()
	}
	processor.OnState = func(state hlsdl.DownloadState, message string) {
		if option.Silent {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", state, message)
	}

	selector := hlsdl.NewQualitySelector(quality)
	if option.Verbose {
		selector = hlsdl.LoggingVariantSelector(selector, func(line string) {
			fmt.Fprintln(cmd.ErrOrStderr(), "selected variant:", line)
		})
	}
	start := time.Now()
	if err := processor.Download(cmd.Context(), url, selector); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if !option.Silent {
		fmt.Fprintf(cmd.ErrOrStderr(), "done in %s\n", utils.FormatDuration(time.Since(start)))
	}
	return nil
}

func processHeaders(headerFlags []string) error {
	if option.Headers == nil {
		option.Headers = make(http.Header)
	}
	for _, h := range headerFlags {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid header format: %s", h)
		}
		option.Headers.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
	return nil
}

func setupFlags(cmd *cobra.Command, headerFlags *[]string, quality *string) {
	cmd.Flags().StringVarP(&option.OutputPath, "output", "o", option.OutputPath, "Output file path")
	cmd.Flags().StringVarP(&option.WorkDir, "work-dir", "w", option.WorkDir, "Scratch directory for segments and progress")
	cmd.Flags().StringVarP(quality, "quality", "q", "best", `Variant to pick from a master playlist: "best", "worst", or a resolution`)
	cmd.Flags().StringVarP(&option.Combiner, "combiner", "m", option.Combiner, `Output combiner: "concat" or "ffmpeg"`)
	cmd.Flags().BoolVar(&cleanupFlag, "cleanup", cleanupFlag, "Remove segment files after a successful combine")
	cmd.Flags().BoolVar(&option.StrictParse, "strict", option.StrictParse, "Fail on any unrecognized playlist tag")

	cmd.Flags().StringVarP(&option.Cookie, "cookies", "c", option.Cookie, "Netscape-format cookie file path")
	cmd.Flags().StringArrayVarP(headerFlags, "header", "H", nil, "Custom HTTP headers")
	cmd.Flags().StringVarP(&option.UserAgent, "user-agent", "u", option.UserAgent, "Custom user agent")
	cmd.Flags().StringVarP(&option.Proxy, "proxy", "x", option.Proxy, "HTTP proxy URL")
	cmd.Flags().IntVarP(&option.MaxRetries, "retry", "r", option.MaxRetries, "Maximum attempts per fetch")
	cmd.Flags().DurationVar(&option.FetchConnectTimeout, "connect-timeout", option.FetchConnectTimeout, "Per-fetch timeout share, added to --read-timeout (no separate connect limit)")
	cmd.Flags().DurationVar(&option.FetchReadTimeout, "read-timeout", option.FetchReadTimeout, "Per-fetch timeout share, added to --connect-timeout")
	cmd.Flags().DurationVar(&option.ShutdownGrace, "shutdown-grace", option.ShutdownGrace, "Grace period for outstanding workers on cancellation")
	cmd.Flags().Int64Var(&option.RateLimitBytesPerSec, "rate-limit", option.RateLimitBytesPerSec, "Throttle segment reads to this many bytes/sec (0 = unlimited)")
	cmd.Flags().BoolVar(&option.NoCache, "no-cache", option.NoCache, "Disable on-disk HTTP response caching")

	cmd.Flags().IntVarP(&option.NumThreads, "threads", "n", option.NumThreads, "Number of concurrent segment workers")

	cmd.Flags().BoolVarP(&option.Debug, "debug", "d", option.Debug, "Enable debug logging")
	cmd.Flags().BoolVarP(&option.Verbose, "verbose", "v", option.Verbose, "Enable verbose output")
	cmd.Flags().BoolVar(&option.Silent, "silent", option.Silent, "Suppress all output except errors")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := createRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
