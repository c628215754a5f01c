// Package rpc is the gateway to the Tezos node. It issues GET and POST
// commands under chains/main/, sanitizes responses, throttles outbound
// calls, and rejects every call made after shutdown.
package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/pkg/config"
	"go.uber.org/ratelimit"
)

// Client issues commands against {scheme}://{host}:{port}/{prefix}chains/main/.
// It holds the only piece of shared mutable state in the core: the rejecting
// flag, flipped once by Shutdown.
type Client struct {
	baseURL     string
	http        *http.Client
	getTimeout  time.Duration
	postTimeout time.Duration
	limiter     ratelimit.Limiter
	retry       *config.RetryConfig
	log         *logger.Logger

	rejecting atomic.Bool
}

// NewClient creates a client from the node configuration.
func NewClient(cfg config.NodeConfig, log *logger.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("node host is required")
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize,
		IdleConnTimeout:     cfg.IdleConnTimeout.Duration,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout.Duration,
		}).DialContext,
	}

	prefix := cfg.PathPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL:     fmt.Sprintf("%s://%s:%d/%schains/main/", cfg.Protocol, cfg.Host, cfg.Port, prefix),
		http:        &http.Client{Transport: transport},
		getTimeout:  cfg.GetResponseEntityTimeout.Duration,
		postTimeout: cfg.PostResponseEntityTimeout.Duration,
		limiter:     limiter,
		retry:       cfg.Retry,
		log:         log.WithComponent(common.ComponentRPC),
	}

	c.log.Infow("rpc client initialized", "base_url", c.baseURL)

	return c, nil
}

// Get issues a GET for the partial path segment and returns the sanitized
// response body.
func (c *Client) Get(ctx context.Context, command string) ([]byte, error) {
	return c.call(ctx, http.MethodGet, command, nil, c.getTimeout)
}

// Post issues a POST for the partial path segment. A nil payload sends an
// empty body.
func (c *Client) Post(ctx context.Context, command string, payload []byte) ([]byte, error) {
	return c.call(ctx, http.MethodPost, command, payload, c.postTimeout)
}

// Shutdown flips the rejecting flag and drains the connection pool. The
// first caller wins; later calls are no-ops. Calls issued after the flag is
// set fail with ErrShutdown without touching the network.
func (c *Client) Shutdown() {
	if !c.rejecting.CompareAndSwap(false, true) {
		return
	}
	c.log.Info("rpc client shutting down, rejecting new calls")
	c.http.CloseIdleConnections()
}

// IsShutdown reports whether the rejecting flag has been set.
func (c *Client) IsShutdown() bool {
	return c.rejecting.Load()
}

func (c *Client) call(ctx context.Context, method, command string, payload []byte, entityTimeout time.Duration) ([]byte, error) {
	var body []byte

	err := retryWithBackoff(ctx, c.retry, command, func() error {
		var attemptErr error
		body, attemptErr = c.callOnce(ctx, method, command, payload, entityTimeout)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) callOnce(ctx context.Context, method, command string, payload []byte, entityTimeout time.Duration) ([]byte, error) {
	if c.rejecting.Load() {
		return nil, ErrShutdown
	}

	c.limiter.Take()

	// The flag may have flipped while waiting on the limiter.
	if c.rejecting.Load() {
		return nil, ErrShutdown
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+command, reqBody)
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		RPCMethodError(method, "transport")
		return nil, &TransportError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	RPCMethodInc(method)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		RPCMethodError(method, "not_found")
		return nil, &NotFoundError{Command: command}
	case resp.StatusCode != http.StatusOK:
		RPCMethodError(method, "status")
		return nil, &TransportError{Command: command, Status: resp.StatusCode}
	}

	body, err := c.readEntity(resp.Body, entityTimeout)
	if err != nil {
		RPCMethodError(method, "timeout")
		return nil, &TimeoutError{Command: command, Err: err}
	}

	RPCMethodDuration(method, time.Since(start))

	return Sanitize(body), nil
}

// readEntity materializes the response body within the configured budget.
func (c *Client) readEntity(r io.Reader, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return io.ReadAll(r)
	}

	type result struct {
		body []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		body, err := io.ReadAll(r)
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		return res.body, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("response entity not materialized within %s", timeout)
	}
}
