// Package preflight holds the run-wide checks performed before any URL is
// processed: external tool availability, outbound connectivity and temp space.
package preflight

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/iconidentify/reelscribe/internal/domain"
)

// Probe checks outbound connectivity by dialing a well-known host that is
// unrelated to the target platforms.
type Probe struct {
	Address string
	Timeout time.Duration
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewProbe creates a connectivity probe.
func NewProbe(address string, timeout time.Duration) *Probe {
	if address == "" {
		address = "8.8.8.8:53"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := &net.Dialer{}
	return &Probe{
		Address: address,
		Timeout: timeout,
		dial:    d.DialContext,
	}
}

// Check returns true if a TCP connection could be opened within the timeout.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Require returns a NetworkError when there is no connectivity.
func (p *Probe) Require(ctx context.Context) error {
	if p.Check(ctx) {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return domain.NewError(domain.KindCancelled, "network probe", ctx.Err())
	}
	return domain.NewError(domain.KindNetworkError, "network probe", nil)
}
