// Package dispatch drives executors over their control connections: it launches the stages of a plan at
// their scheduled offsets, collects completion and cost, and runs profiling rounds.
package dispatch

import (
	"context"
	"net"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// Conn is the control connection to one executor.
type Conn struct {
	ExecutorID int
	Address    string
	conn       net.Conn
}

// NewConn wraps an established connection.
func NewConn(executorID int, conn net.Conn) *Conn {
	return &Conn{ExecutorID: executorID, Address: conn.RemoteAddr().String(), conn: conn}
}

// Dial connects to every address, in order. Executor ids are positions in addresses. Each executor is tried
// up to attempts times, as it may still be starting. If any dial fails the connections already made are
// closed.
func Dial(ctx *schedcontext.Context, addresses []string, timeout time.Duration, attempts uint) ([]*Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conns := make([]*Conn, 0, len(addresses))
	for i, address := range addresses {
		var conn net.Conn
		err := retry.Do(
			func() error {
				var err error
				conn, err = dialer.DialContext(ctx, "tcp", address)
				return err
			},
			retry.Attempts(attempts),
			retry.Delay(timeout/10),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				ctx.Log.WithError(err).Warnf("executor %d at %s not reachable, attempt %d", i, address, n+1)
			}),
		)
		if err != nil {
			err = errors.Wrapf(err, "connecting to executor %d at %s", i, address)
			if closeErr := CloseAll(conns); closeErr != nil {
				ctx.Log.WithError(closeErr).Warn("failed to close executor connections")
			}
			return nil, err
		}
		conns = append(conns, &Conn{ExecutorID: i, Address: address, conn: conn})
		ctx.Log.Infof("connected to executor %d at %s", i, address)
	}
	return conns, nil
}

func (c *Conn) Send(p *controlapi.Packet) error {
	if err := controlapi.WritePacket(c.conn, p); err != nil {
		return errors.WithMessagef(err, "executor %d", c.ExecutorID)
	}
	return nil
}

// Expect blocks until the executor sends a packet, which must carry tag, or ctx is done. Once ctx is done
// the connection can no longer be read from.
func (c *Conn) Expect(ctx context.Context, tag controlapi.Tag) (*controlapi.Packet, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	p, err := controlapi.ExpectPacket(c.conn, tag)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, errors.WithMessagef(err, "executor %d", c.ExecutorID)
	}
	return p, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// CloseAll closes every connection and returns all errors encountered.
func CloseAll(conns []*Conn) error {
	var result *multierror.Error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "closing connection to executor %d", c.ExecutorID))
		}
	}
	return result.ErrorOrNil()
}
