package llm

import (
	"net"
	"net/http"
	"time"

	"neuroguide/internal/infra/config"
)

// Default connection pool settings: one upstream host, many concurrent
// long-lived streams.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 50
	defaultIdleConnTimeout     = 120 * time.Second
	defaultConnTimeout         = 30 * time.Second
	defaultRespTimeout         = 120 * time.Second
)

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// NewPooledTransport creates an http.Transport with connection pooling for
// upstream calls. respTimeout bounds the wait for response headers only.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   orDefault(connTimeout, defaultConnTimeout),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: orDefault(respTimeout, defaultRespTimeout),
		MaxIdleConns:          orDefault(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   orDefault(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       orDefault(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       orDefault(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates an *http.Client for the upstream. No overall client
// timeout is set: a streamed reply may legitimately run for minutes and is
// bounded by the caller's context instead.
func NewHTTPClient(cfg config.UpstreamConfig) *http.Client {
	return &http.Client{
		Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool),
	}
}
