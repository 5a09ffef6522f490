package hlsdl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/evermind-zz/hlsdl/utils"
)

// Processor orchestrates one HLS download: parse, key prefetch, worker
// pool dispatch, join, and finalize. One Processor instance is meant for
// one Download call; create a new one per URL, mirroring the teacher's
// per-stream M3U8Downloader instantiation in downloadM3U8.
type Processor struct {
	option    Option
	client    *resty.Client
	decryptor Decryptor
	combiner  Combiner
	store     ProgressStore
	log       *slog.Logger

	OnProgress OnProgress
	OnState    OnState

	mu sync.Mutex // serializes concurrent Download calls on the same Processor, as the teacher's Downloader does

	rcMu           sync.Mutex // guards activeRC/activeNotifier against Pause/Resume/Cancel racing run()
	activeRC       *RunContext
	activeNotifier *stateNotifier

	progressMu sync.Mutex // held across each progress insert + snapshot + Save
}

// NewProcessor builds a Processor from options, merging with DefaultOptions
// and wiring the default collaborators (httpFetcher, AES-128-CBC
// Decryptor, file-backed ProgressStore, and the configured Combiner).
// Callers who need fakes for testing should use NewProcessorWithCollaborators.
func NewProcessor(opts Option) *Processor {
	merged := DefaultOptions.Combine(opts)
	p := &Processor{
		option:    merged,
		client:    newClient(merged),
		decryptor: NewAESCBCDecryptor(),
		store:     newFileProgressStore(merged.WorkDir),
		log:       newLogger(merged),
	}
	if merged.Combiner == "ffmpeg" {
		p.combiner = NewFFmpegCombiner()
	} else {
		p.combiner = NewConcatCombiner()
	}
	return p
}

// NewProcessorWithCollaborators builds a Processor with explicit
// collaborators, for tests that substitute fakes for the Decryptor,
// ProgressStore, or Combiner (a fake Fetcher is passed to run instead).
func NewProcessorWithCollaborators(opt Option, decryptor Decryptor, store ProgressStore, combiner Combiner) *Processor {
	merged := DefaultOptions.Combine(opt)
	return &Processor{
		option:    merged,
		client:    newClient(merged),
		decryptor: decryptor,
		store:     store,
		combiner:  combiner,
		log:       newLogger(merged),
	}
}

// fetcherFor builds the Fetcher used for this run. Tests that need to
// substitute a fake Fetcher should call run directly instead of Download
// (see processor_test.go).
func (p *Processor) fetcherFor() Fetcher {
	return newHTTPFetcher(p.client, p.option.Headers, p.option.RateLimitBytesPerSec)
}

// Download runs one HLS download to completion (or terminal failure). url
// may be a master or media playlist; selector picks a variant when it is a
// master playlist (pass nil if the URL is known to be a media playlist).
func (p *Processor) Download(ctx context.Context, url string, selector VariantSelector) error {
	return p.run(ctx, url, selector, p.fetcherFor())
}

// Pause cooperatively pauses the Download currently in flight on this
// Processor, if any: workers finish their current segment and then block
// at their next suspension point (see RunContext.WaitIfPaused) until
// Resume is called. It is a no-op if no Download is running or the run is
// already paused.
func (p *Processor) Pause() {
	rc, notifier := p.active()
	if rc == nil {
		return
	}
	rc.Pause()
	notifier.emit(StatePaused, "download paused")
}

// Resume releases a pause set by Pause. It is a no-op if no Download is
// running or the run is not currently paused.
func (p *Processor) Resume() {
	rc, notifier := p.active()
	if rc == nil || !rc.paused.Load() {
		return
	}
	rc.Resume()
	notifier.emit(StateResumed, "download resumed")
}

// Cancel cooperatively cancels the Download currently in flight on this
// Processor, if any — equivalent to cancelling the context passed to
// Download, but reachable by callers that only hold a *Processor. It is a
// no-op if no Download is running.
func (p *Processor) Cancel() {
	rc, _ := p.active()
	if rc == nil {
		return
	}
	rc.Cancel()
}

// active returns the RunContext/stateNotifier of the in-flight Download,
// or (nil, nil) if none is running.
func (p *Processor) active() (*RunContext, *stateNotifier) {
	p.rcMu.Lock()
	defer p.rcMu.Unlock()
	return p.activeRC, p.activeNotifier
}

// run is the common core used by both Download and tests, which may
// supply a fake Fetcher.
func (p *Processor) run(ctx context.Context, url string, selector VariantSelector, fetcher Fetcher) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	notifier := newStateNotifier(p.OnState)
	rc := newRunContext(ctx)
	defer rc.cancel()

	p.rcMu.Lock()
	p.activeRC, p.activeNotifier = rc, notifier
	p.rcMu.Unlock()
	defer func() {
		p.rcMu.Lock()
		p.activeRC, p.activeNotifier = nil, nil
		p.rcMu.Unlock()
	}()

	p.log.Info("download started", "url", url, "workDir", p.option.WorkDir)
	notifier.emit(StateStarted, "download started")

	// Step 1: make a state file present even before any segment completes,
	// re-saving whatever set an earlier run persisted rather than clearing it.
	initial, err := p.store.Load()
	if err == nil {
		err = p.store.Save(initial)
	}
	if err != nil {
		notifier.emit(StateError, err.Error())
		notifier.emit(StateStopped, "stopped")
		return err
	}

	// Step 2: parse.
	playlist, err := ParsePlaylist(rc.ctx, fetcher, url, p.option.StrictParse, selector)
	if err != nil {
		notifier.emit(StateError, err.Error())
		notifier.emit(StateStopped, "stopped")
		return err
	}
	rc.playlist = playlist
	p.log.Debug("playlist parsed", "segments", len(playlist.Segments))

	// Step 3: prefetch keys.
	if err := p.prefetchKeys(rc.ctx, fetcher, playlist); err != nil {
		notifier.emit(StateError, err.Error())
		notifier.emit(StateStopped, "stopped")
		return err
	}

	// Step 4: materialize work.
	if err := os.MkdirAll(p.option.WorkDir, 0o755); err != nil {
		wrapped := ioError(p.option.WorkDir, err)
		notifier.emit(StateError, wrapped.Error())
		notifier.emit(StateStopped, "stopped")
		return wrapped
	}
	done, err := p.store.Load()
	if err != nil {
		notifier.emit(StateError, err.Error())
		notifier.emit(StateStopped, "stopped")
		return err
	}
	rc.progress = newConcurrentIntSet(done)

	todo := make([]int, 0, len(playlist.Segments))
	for _, seg := range playlist.Segments {
		if !rc.progress.Contains(seg.Index) {
			todo = append(todo, seg.Index)
		}
	}

	// Step 5+6: dispatch and join.
	runErr := p.dispatchAndJoin(rc, fetcher, playlist, todo)

	switch {
	case runErr != nil && isCancellationError(runErr):
		notifier.emit(StateCancelled, runErr.Error())
		if cleanupErr := p.store.Cleanup(); cleanupErr != nil {
			notifier.emit(StateStopped, "stopped")
			return cleanupErr
		}
		notifier.emit(StateStopped, "stopped")
		return runErr
	case runErr != nil:
		notifier.emit(StateError, runErr.Error())
		notifier.emit(StateStopped, "stopped")
		return runErr
	}

	// Step 7: finalize.
	finalizeErr := p.finalize(playlist)
	if finalizeErr != nil {
		notifier.emit(StateError, finalizeErr.Error())
		notifier.emit(StateStopped, "stopped")
		return finalizeErr
	}

	p.log.Info("download completed", "output", p.option.OutputPath)
	notifier.emit(StateCompleted, "download completed")
	notifier.emit(StateStopped, "stopped")
	return nil
}

func isCancellationError(err error) bool {
	pe, ok := err.(*ProcessorError)
	if !ok {
		return false
	}
	return pe.Kind == ErrKindCancelled || pe.Kind == ErrKindInterrupted
}

// prefetchKeys builds the unique-EncryptionSpec set (by structural
// equality) and fetches each key exactly once, per spec.md §4.6 step 3 and
// the "key dedup" invariant in §8.
func (p *Processor) prefetchKeys(ctx context.Context, fetcher Fetcher, playlist *Playlist) error {
	var unique []*EncryptionSpec
	for i := range playlist.Segments {
		spec := playlist.Segments[i].Encryption
		if spec == nil || len(spec.KeyBytes) == 16 {
			continue
		}
		found := false
		for _, u := range unique {
			if u == spec || u.Equal(spec) {
				found = true
				break
			}
		}
		if !found {
			unique = append(unique, spec)
		}
	}

	for _, spec := range unique {
		err := retryWithBackoff(ctx, p.option.MaxRetries, p.option.RetryBaseDelay, func(int) error {
			data, err := fetchToEnd(ctx, fetcher, spec.KeyURI)
			if err != nil {
				return err
			}
			if len(data) != 16 {
				return &keyLengthError{got: len(data)}
			}
			spec.KeyBytes = data
			return nil
		})
		if err != nil {
			var kle *keyLengthError
			if asKeyLengthError(err, &kle) {
				return wrapError(ErrKindKeyLengthInvalid, fmt.Sprintf("key length invalid: expected 16 bytes, got %d", kle.got), err)
			}
			return wrapError(ErrKindKeyFetchFailed, "failed to fetch encryption key", err)
		}
	}
	return nil
}

type keyLengthError struct{ got int }

func (e *keyLengthError) Error() string {
	return fmt.Sprintf("invalid key length: expected 16 bytes, got %d", e.got)
}

func asKeyLengthError(err error, target **keyLengthError) bool {
	for err != nil {
		if kle, ok := err.(*keyLengthError); ok {
			*target = kle
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// dispatchAndJoin runs the bounded worker pool over todo indices and
// returns the first terminal error (if any), grounded on chunk.go's
// chunkDownloader.Download/worker shape: a fixed number of worker
// goroutines draining a job channel, joined with a WaitGroup.
func (p *Processor) dispatchAndJoin(rc *RunContext, fetcher Fetcher, playlist *Playlist, todo []int) error {
	threads := p.option.NumThreads
	if threads < 1 {
		threads = 1
	}

	jobs := make(chan int)
	errCh := make(chan error, len(todo))
	var wg sync.WaitGroup

	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := p.runSegmentTask(rc, fetcher, playlist, idx); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, idx := range todo {
			select {
			case jobs <- idx:
			case <-rc.ctx.Done():
				return
			}
		}
	}()

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		// All workers exited on their own; nothing to force.
	case <-rc.ctx.Done():
		// Cancelled: give outstanding tasks a bounded grace period to
		// notice and exit before we stop waiting on them, per spec.md §4.6
		// step 8 and §5's "pool shutdown uses a 5s grace period".
		select {
		case <-joined:
		case <-time.After(p.option.ShutdownGrace):
		}
	}

	// Cancellation takes priority over a task error observed at the same
	// join: spec.md §4.6 step 6 classifies "any CancelledDuringIO or
	// external cancel" as CANCELLED even if a worker's in-flight fetch
	// surfaced as a generic error once its context was cancelled.
	if rc.Cancelled() {
		return ErrCancelled
	}
	select {
	case err := <-errCh:
		return err
	default:
	}
	return nil
}

// runSegmentTask executes spec.md §4.6 step 5 for a single segment index.
func (p *Processor) runSegmentTask(rc *RunContext, fetcher Fetcher, playlist *Playlist, idx int) error {
	rc.WaitIfPaused()
	if rc.Cancelled() {
		return nil
	}

	if err := p.processSegment(rc, fetcher, &playlist.Segments[idx]); err != nil {
		if isCancellationError(err) || rc.Cancelled() {
			return ErrCancelled
		}
		return segmentError(ErrKindSegmentFailed, idx, err)
	}

	p.progressMu.Lock()
	rc.progress.Insert(idx)
	saveErr := p.store.Save(rc.progress.Snapshot())
	done := rc.progress.Len()
	p.progressMu.Unlock()
	if saveErr != nil {
		return ioError("progress store", saveErr)
	}
	if p.OnProgress != nil {
		p.OnProgress(done, len(playlist.Segments))
	}

	if rc.Cancelled() {
		return wrapError(ErrKindCancelled, "cancellation observed after progress update", nil)
	}
	return nil
}

// processSegment is spec.md §4.6's process_segment pipeline: fetch, decrypt
// if needed, write create-or-truncate to {WorkDir}/segment_{i+1}.ts.
func (p *Processor) processSegment(rc *RunContext, fetcher Fetcher, seg *Segment) error {
	if rc.Cancelled() {
		return ErrCancelled
	}

	var stream io.ReadCloser

	err := retryWithBackoff(rc.ctx, p.option.MaxRetries, p.option.RetryBaseDelay, func(attempt int) error {
		s, fetchErr := fetcher.Fetch(rc.ctx, seg.URI)
		if fetchErr != nil {
			p.log.Debug("segment fetch attempt failed", "segment", seg.Index, "attempt", attempt, "error", fetchErr)
			return fetchErr
		}
		stream = s
		return nil
	})
	if err != nil {
		return err
	}

	if seg.Encryption != nil {
		if len(seg.Encryption.KeyBytes) != 16 {
			stream.Close()
			return newError(ErrKindKeyFetchFailed, "KeyMissing: encryption key not populated before dispatch")
		}
		decrypted, decErr := p.decryptor.Decrypt(stream, seg.Encryption.KeyBytes, seg.Encryption, seg.Index)
		if decErr != nil {
			return decErr
		}
		stream = decrypted
	}
	defer stream.Close()

	path := segmentFilePath(p.option.WorkDir, seg.Index)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return ioError(path, err)
	}
	defer file.Close()

	buf := make([]byte, 32*1024)
	var written int64
	for {
		if rc.Cancelled() {
			return ErrCancelled
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return ioError(path, writeErr)
			}
			written += int64(n)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return wrapError(ErrKindSegmentFailed, "failed to read segment stream", readErr)
		}
	}
	p.log.Debug("segment written", "segment", seg.Index, "size", utils.FormatBytes(written))
	return nil
}

// finalize verifies every segment file exists, combines them in index
// order, optionally removes them, and purges the progress file — spec.md
// §4.6 step 7.
func (p *Processor) finalize(playlist *Playlist) error {
	ordered := make([]string, len(playlist.Segments))
	for _, seg := range playlist.Segments {
		path := segmentFilePath(p.option.WorkDir, seg.Index)
		if _, err := os.Stat(path); err != nil {
			return &ProcessorError{Kind: ErrKindMissingSegment, Msg: "segment file missing at finalize", Index: seg.Index, Err: err}
		}
		ordered[seg.Index] = path
	}

	if err := p.combiner.Combine(ordered, p.option.WorkDir, p.option.OutputPath); err != nil {
		return err
	}

	// The built-in combiners already remove their inputs as they consume
	// them; this is a best-effort backstop for CleanupSegmentsOnComplete
	// against a Combiner implementation that leaves its inputs in place.
	if p.option.cleanupSegmentsOnComplete() {
		for _, path := range ordered {
			os.Remove(path)
		}
	}

	return p.store.Cleanup()
}
