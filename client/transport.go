package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

const dnsRefreshInterval = 5 * time.Minute

var (
	dnsResolver     = &dnscache.Resolver{}
	dnsRefreshStart sync.Once
)

// NewTransport returns an http.Transport whose dialer resolves hosts through
// a shared DNS cache. The cache is refreshed in the background every five
// minutes for the lifetime of the process.
func NewTransport() *http.Transport {
	dnsRefreshStart.Do(func() {
		go func() {
			ticker := time.NewTicker(dnsRefreshInterval)
			defer ticker.Stop()
			for range ticker.C {
				dnsResolver.Refresh(true)
			}
		}()
	})

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := dnsResolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
