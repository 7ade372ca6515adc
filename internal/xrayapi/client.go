// Package xrayapi talks to a remote Xray process over its gRPC API. The API
// listens on the server's loopback only, so every call is dialed through an
// SSH-forwarded connection supplied by the dialer.
package xrayapi

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	handlerService "github.com/xtls/xray-core/app/proxyman/command"
	statsService "github.com/xtls/xray-core/app/stats/command"
	"github.com/xtls/xray-core/common/protocol"
	"github.com/xtls/xray-core/common/serial"
	"github.com/xtls/xray-core/proxy/vless"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jarvisvpn/jvpnd/internal/sshexec"
)

// Dialer opens a connection to addr as seen from the target host.
type Dialer interface {
	Dial(ctx context.Context, t sshexec.Target, addr string) (net.Conn, error)
}

// Client is a per-call gRPC client for remote Xray APIs. Connections are
// opened and closed per call, mirroring the SSH path's fault isolation.
type Client struct {
	dialer  Dialer
	timeout time.Duration
}

// New returns a Client. Zero timeout falls back to 15s per call.
func New(dialer Dialer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{dialer: dialer, timeout: timeout}
}

func (c *Client) conn(ctx context.Context, t sshexec.Target, apiAddr string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, apiAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return c.dialer.Dial(ctx, t, addr)
		}),
	)
}

// AddUser adds a VLESS user to the inbound with the given tag.
func (c *Client) AddUser(ctx context.Context, t sshexec.Target, apiAddr, tag, id, email, flow string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.conn(ctx, t, apiAddr)
	if err != nil {
		return fmt.Errorf("dialing xray api: %w", err)
	}
	defer conn.Close()

	hs := handlerService.NewHandlerServiceClient(conn)
	_, err = hs.AlterInbound(ctx, &handlerService.AlterInboundRequest{
		Tag: tag,
		Operation: serial.ToTypedMessage(&handlerService.AddUserOperation{
			User: &protocol.User{
				Email: email,
				Account: serial.ToTypedMessage(&vless.Account{
					Id:   id,
					Flow: flow,
				}),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("add user %s: %w", email, err)
	}
	return nil
}

// RemoveUser removes the user with the given email from the inbound.
func (c *Client) RemoveUser(ctx context.Context, t sshexec.Target, apiAddr, tag, email string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.conn(ctx, t, apiAddr)
	if err != nil {
		return fmt.Errorf("dialing xray api: %w", err)
	}
	defer conn.Close()

	hs := handlerService.NewHandlerServiceClient(conn)
	_, err = hs.AlterInbound(ctx, &handlerService.AlterInboundRequest{
		Tag: tag,
		Operation: serial.ToTypedMessage(&handlerService.RemoveUserOperation{
			Email: email,
		}),
	})
	if err != nil {
		return fmt.Errorf("remove user %s: %w", email, err)
	}
	return nil
}

// QueryUserBytes returns the uplink/downlink byte counters for a user.
// Counters that have never ticked are reported as zero, not as an error.
func (c *Client) QueryUserBytes(ctx context.Context, t sshexec.Target, apiAddr, email string) (up, down int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.conn(ctx, t, apiAddr)
	if err != nil {
		return 0, 0, fmt.Errorf("dialing xray api: %w", err)
	}
	defer conn.Close()

	sc := statsService.NewStatsServiceClient(conn)
	up, err = querySingle(ctx, sc, fmt.Sprintf("user>>>%s>>>traffic>>>uplink", email))
	if err != nil {
		return 0, 0, err
	}
	down, err = querySingle(ctx, sc, fmt.Sprintf("user>>>%s>>>traffic>>>downlink", email))
	if err != nil {
		return 0, 0, err
	}
	return up, down, nil
}

func querySingle(ctx context.Context, sc statsService.StatsServiceClient, name string) (int64, error) {
	resp, err := sc.QueryStats(ctx, &statsService.QueryStatsRequest{Pattern: name})
	if err != nil {
		return 0, fmt.Errorf("stats query %s: %w", name, err)
	}
	for _, stat := range resp.GetStat() {
		if stat.GetName() == name {
			return stat.GetValue(), nil
		}
	}
	return 0, nil
}

// IsAlreadyExists reports whether err is Xray's complaint about adding a
// user that is already present on the inbound.
func IsAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// IsNotFound reports whether err is Xray's complaint about removing a user
// that is not present.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
