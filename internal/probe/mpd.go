package probe

import (
	"context"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// MPD is ready when the music player daemon at Address accepts a client and
// answers ping. Address may be host:port or an absolute unix socket path.
type MPD struct {
	Address  string
	Password string
	// Timeout bounds one connect + ping round trip.
	Timeout time.Duration
}

func (c MPD) Ready(ctx context.Context) (bool, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	network := "tcp"
	if len(c.Address) > 0 && c.Address[0] == '/' {
		network = "unix"
	}
	type result struct {
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var (
			cl  *mpd.Client
			err error
		)
		if c.Password != "" {
			cl, err = mpd.DialAuthenticated(network, c.Address, c.Password)
		} else {
			cl, err = mpd.Dial(network, c.Address)
		}
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer func() { _ = cl.Close() }()
		ch <- result{err: cl.Ping()}
	}()
	select {
	case r := <-ch:
		return r.err == nil, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c MPD) Describe() string { return "mpd:" + c.Address }
