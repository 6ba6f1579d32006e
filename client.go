// Package forge drives a remote BuildKit daemon: it shapes solve
// requests from a build recipe, attaches a session for the daemon's
// callbacks (file sync, credentials, secrets, health), and streams
// build progress back to the caller.
package forge

import (
	"context"
	"net/url"
	"time"

	controlapi "github.com/moby/buildkit/api/services/control"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultAddress is where buildkitd listens when nothing else is
// configured.
const DefaultAddress = "unix:///run/buildkit/buildkitd.sock"

const connectTimeout = 30 * time.Second

// Client talks to one buildkitd control endpoint.
type Client struct {
	conn    *grpc.ClientConn
	control controlapi.ControlClient
}

// NewClient connects to the daemon at addr (tcp://host:port or
// unix://path; empty means DefaultAddress). Connection establishment is
// bounded by a 30 second timeout.
func NewClient(ctx context.Context, addr string) (*Client, error) {
	target, err := dialTarget(addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to buildkitd at %s", target)
	}
	return &Client{conn: conn, control: controlapi.NewControlClient(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// DaemonInfo describes the daemon build the client is connected to.
type DaemonInfo struct {
	Version  string
	Revision string
	Package  string
}

// Info queries the daemon and doubles as the health check: an
// unreachable or unhealthy daemon fails here before any build is
// attempted.
func (c *Client) Info(ctx context.Context) (*DaemonInfo, error) {
	resp, err := c.control.Info(ctx, &controlapi.InfoRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "querying daemon info")
	}
	info := &DaemonInfo{}
	if v := resp.BuildkitVersion; v != nil {
		info.Version = v.Version
		info.Revision = v.Revision
		info.Package = v.Package
	}
	return info, nil
}

func dialTarget(addr string) (string, error) {
	if addr == "" {
		addr = DefaultAddress
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", errors.Wrapf(err, "invalid daemon address %s", addr)
	}
	switch u.Scheme {
	case "unix":
		return addr, nil
	case "tcp":
		return u.Host, nil
	default:
		return "", errors.Errorf("unsupported daemon address scheme %q (want tcp:// or unix://)", u.Scheme)
	}
}
