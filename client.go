package hlsdl

import (
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"

	"github.com/evermind-zz/hlsdl/utils"
)

const defaultUserAgent = "hlsdl/1.0 (+https://github.com/evermind-zz/hlsdl)"

// newClient builds the shared resty.Client used as the base for every
// Fetcher. One base client is built per Processor and cloned once per
// Download call (resty.Client.Clone, in newHTTPFetcher); that run's workers
// all share the clone, matching the teacher's m3u8 downloader's approach of
// cloning a shared client instead of building a fresh transport per call.
func newClient(o Option) *resty.Client {
	client := resty.New()

	client.SetTimeout(o.FetchConnectTimeout + o.FetchReadTimeout)

	if o.Proxy != "" {
		client.SetProxy(o.Proxy)
	}

	if o.Cookie != "" {
		jar, err := utils.CookieJarFromFile(o.Cookie)
		if err != nil {
			newLogger(o).Warn("failed to load cookie file, continuing without it", "path", o.Cookie, "error", err)
		} else {
			client.SetCookieJar(jar)
		}
	}

	client.SetRetryCount(0) // retries are handled by the processor's own retry loop, not resty's

	if o.Headers != nil {
		client.Header = o.Headers.Clone()
	}

	userAgent := o.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("User-Agent", userAgent)

	if o.Debug {
		client.SetDebug(true)
	}

	if !o.NoCache {
		cachePath := filepath.Join(os.TempDir(), "hlsdl_cache")
		cache := diskcache.New(cachePath)
		transport := httpcache.NewTransport(cache)
		client.SetTransport(transport)
	}

	client.SetHeader("Accept", "*/*")
	client.SetHeader("Accept-Encoding", "gzip, deflate")
	client.SetHeader("Connection", "keep-alive")

	return client
}
