// Package proxy supplies http.Transport proxy functions for fetchers that
// need to spread requests across exits.
package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
)

type Func func(*http.Request) (*url.URL, error)

type roundRobin struct {
	urls  []*url.URL
	index atomic.Uint32
}

func (r *roundRobin) next(_ *http.Request) (*url.URL, error) {
	i := r.index.Add(1) - 1
	return r.urls[i%uint32(len(r.urls))], nil
}

// RoundRobin rotates through the given proxy URLs on every request. The
// scheme selects the proxy type; http, https and socks5 are understood, and
// an empty scheme means http.
func RoundRobin(proxyURLs ...string) (Func, error) {
	if len(proxyURLs) < 1 {
		return nil, errors.New("proxy URL list is empty")
	}
	urls := make([]*url.URL, len(proxyURLs))
	for i, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		urls[i] = u
	}
	rr := &roundRobin{urls: urls}
	return rr.next, nil
}
