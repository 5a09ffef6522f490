package hlsdl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// fixtureFetcher is an in-memory Fetcher over a fixed URL->body map, so
// parser, key-prefetch and processor tests never touch the network.
type fixtureFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	errs    map[string]error
	fetched map[string]int
}

func newFixtureFetcher(bodies map[string]string) *fixtureFetcher {
	return &fixtureFetcher{bodies: bodies, fetched: map[string]int{}}
}

func (f *fixtureFetcher) failOn(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	f.errs[url] = err
}

func (f *fixtureFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.fetched[url]++
	err := f.errs[url]
	body, ok := f.bodies[url]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("fixtureFetcher: no body registered for " + url)
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

func (f *fixtureFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[url]
}

// blockingFetcher wraps a fixtureFetcher but blocks Fetch calls for a
// chosen URL until release() is called (or the context is cancelled),
// for tests exercising the S3-style "cancel mid-flight" scenario.
type blockingFetcher struct {
	*fixtureFetcher
	blockURL string
	gate     chan struct{}
	entered  chan struct{}
}

func newBlockingFetcher(bodies map[string]string, blockURL string) *blockingFetcher {
	return &blockingFetcher{
		fixtureFetcher: newFixtureFetcher(bodies),
		blockURL:       blockURL,
		gate:           make(chan struct{}),
		entered:        make(chan struct{}, 1),
	}
}

func (f *blockingFetcher) release() {
	close(f.gate)
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == f.blockURL {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fixtureFetcher.Fetch(ctx, url)
}

// flakyFetcher fails a chosen URL with a transient error for its first
// failCount calls, then delegates to the wrapped fixtureFetcher.
type flakyFetcher struct {
	*fixtureFetcher
	failURL   string
	failCount int
	mu        sync.Mutex
	seen      int
}

func newFlakyFetcher(bodies map[string]string, failURL string, failCount int) *flakyFetcher {
	return &flakyFetcher{fixtureFetcher: newFixtureFetcher(bodies), failURL: failURL, failCount: failCount}
}

func (f *flakyFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == f.failURL {
		f.mu.Lock()
		f.seen++
		shouldFail := f.seen <= f.failCount
		f.mu.Unlock()
		if shouldFail {
			return nil, &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}
		}
	}
	return f.fixtureFetcher.Fetch(ctx, url)
}

// memProgressStore is an in-memory ProgressStore, for processor tests that
// exercise resume semantics without touching the filesystem.
type memProgressStore struct {
	mu    sync.Mutex
	saved map[int]struct{}
	seed  map[int]struct{}
	saves int
}

func newMemProgressStore(seed map[int]struct{}) *memProgressStore {
	if seed == nil {
		seed = map[int]struct{}{}
	}
	return &memProgressStore{seed: seed}
}

func (s *memProgressStore) Load() (map[int]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]struct{}, len(s.seed))
	for k := range s.seed {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *memProgressStore) Save(done map[int]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[int]struct{}, len(done))
	for k := range done {
		snap[k] = struct{}{}
	}
	s.saved = snap
	s.saves++
	return nil
}

func (s *memProgressStore) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = nil
	return nil
}

// fakeCombiner records what it was asked to combine, instead of touching disk.
type fakeCombiner struct {
	mu       sync.Mutex
	combined []string
	err      error
}

func (c *fakeCombiner) Combine(orderedFiles []string, _ string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.combined = append([]string(nil), orderedFiles...)
	return nil
}

// passthroughDecryptor returns the ciphertext stream unchanged, for
// processor tests that only need to exercise the unencrypted path.
type passthroughDecryptor struct{}

func (passthroughDecryptor) Decrypt(ciphertext io.ReadCloser, _ []byte, _ *EncryptionSpec, _ int) (io.ReadCloser, error) {
	return ciphertext, nil
}
