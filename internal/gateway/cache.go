package gateway

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog/log"
)

// readCache is an HTTP cache for reads that is thrown away whenever the
// session changes. Responses are keyed by URL only, so a cache must never
// outlive the credential that filled it.
type readCache struct {
	dir  string
	next http.RoundTripper

	mu        sync.Mutex
	transport *httpcache.Transport
	current   string
}

// newReadCache keeps entries in memory when dir is empty, otherwise on disk
// under a directory per session.
func newReadCache(dir string, next http.RoundTripper) *readCache {
	rc := &readCache{dir: dir, next: next}
	rc.Reset("")
	return rc
}

// Reset drops every cached entry. fingerprint names the disk partition for
// the new session.
func (rc *readCache) Reset(fingerprint string) {
	var cache httpcache.Cache
	var partition string

	if rc.dir == "" {
		cache = httpcache.NewMemoryCache()
	} else {
		if fingerprint == "" {
			fingerprint = "anonymous"
		}
		partition = filepath.Join(rc.dir, fingerprint)
		cache = diskcache.New(partition)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = rc.next
	transport.MarkCachedResponses = true

	rc.mu.Lock()
	previous := rc.current
	rc.transport = transport
	rc.current = partition
	rc.mu.Unlock()

	if previous != "" && previous != partition {
		if err := os.RemoveAll(previous); err != nil {
			log.Warn().Err(err).Str("dir", previous).Msg("failed to remove read cache")
		}
	}
}

// RoundTrip implements http.RoundTripper.
func (rc *readCache) RoundTrip(req *http.Request) (*http.Response, error) {
	rc.mu.Lock()
	transport := rc.transport
	rc.mu.Unlock()

	return transport.RoundTrip(req)
}

func fromCache(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(httpcache.XFromCache) == "1"
}
