/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"context"
	"time"

	"github.com/parley-im/parley/client"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/session"
	"github.com/parley-im/parley/transport"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = time.Second * 30

	// consecutive failed attempts that open the breaker
	tripThreshold = 5

	openStateTimeout = time.Minute
)

type connectFunc func(ctx context.Context, cfg *client.Config) (*client.Client, error)

// reconnector establishes client sessions retrying transient failures
// with exponential backoff. A circuit breaker stops hammering a server
// that keeps refusing connections.
type reconnector struct {
	cfg        *client.Config
	connect    connectFunc
	cb         *gobreaker.CircuitBreaker
	minBackoff time.Duration
	maxBackoff time.Duration
}

func newReconnector(cfg *client.Config, connect connectFunc) *reconnector {
	return &reconnector{
		cfg:     cfg,
		connect: connect,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "connect",
			Timeout: openStateTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Infof("%s circuit breaker: %s -> %s", name, from, to)
			},
		}),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// dial returns a connected client, or the first non retryable error.
func (r *reconnector) dial(ctx context.Context) (*client.Client, error) {
	backoff := r.minBackoff
	for {
		res, err := r.cb.Execute(func() (interface{}, error) {
			return r.connect(ctx, r.cfg)
		})
		if err == nil {
			return res.(*client.Client), nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		log.Warnf("connection attempt failed: %v (next attempt in %v)", err, backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// isRetryable reports whether a connection failure may be overcome by
// trying again later. Only transport failures, lost connections and breaker
// rejections qualify. Negotiation failures are permanent.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var authErr *session.AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var tlsErr *transport.TLSError
	if errors.As(err, &tlsErr) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var connErr *transport.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var lostErr *session.ConnectionLostError
	return errors.As(err, &lostErr)
}
