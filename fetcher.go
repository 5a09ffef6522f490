package hlsdl

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/evermind-zz/hlsdl/utils"
)

// Fetcher resolves a URL to a readable byte stream. Implementations must be
// safe for concurrent use, must surface transient faults (connection reset,
// timeout) as errors satisfying IsTransientFetchError, and must release the
// underlying connection on Close.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// httpFetcher is the default Fetcher: a resty client cloned from the run's
// shared base client (so cookies/proxy/cache config are inherited) with the
// run's extra headers merged in, grounded on the teacher's
// "client.Clone(); client.Header = MergeHeader(...)" idiom in downloadM3U8.
type httpFetcher struct {
	client  *resty.Client
	headers http.Header
	rateBps int64
}

func newHTTPFetcher(base *resty.Client, headers http.Header, rateBps int64) *httpFetcher {
	client := base.Clone(context.Background())
	if headers != nil {
		client.Header = utils.MergeHeader(client.Header, headers)
	}
	return &httpFetcher{client: client, headers: client.Header, rateBps: rateBps}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req := f.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusPartialContent {
		body := resp.RawBody()
		if body != nil {
			body.Close()
		}
		return nil, &httpStatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	body := resp.RawBody()
	if f.rateBps > 0 {
		return utils.NewRateLimiter(body, f.rateBps), nil
	}
	return body, nil
}

// httpStatusError wraps a non-OK HTTP response so the retry classifier can
// distinguish terminal client errors (401/403/404) from transient ones.
type httpStatusError struct {
	StatusCode int
	Status     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("fetch returned status %d: %s", e.StatusCode, e.Status)
}

// fetchToEnd reads an entire Fetcher stream into memory; used for playlist
// text and encryption keys, neither of which is ever large enough to
// warrant streaming.
func fetchToEnd(ctx context.Context, f Fetcher, url string) ([]byte, error) {
	stream, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	return data, nil
}
