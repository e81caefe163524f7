// Package ready decides when a started VM counts as Ready: after a domain is
// Running, wait for its DHCP lease, then — if a guest port is declared —
// poll HTTP until the guest responds.
package ready

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

// DefaultLeaseTimeout and DefaultHTTPTimeout bound the two probe phases.
const (
	DefaultLeaseTimeout = 120 * time.Second
	DefaultHTTPTimeout  = 180 * time.Second
)

// LeaseWaiter is the subset of internal/libvirt.Driver this package needs,
// letting tests substitute a fake without a running hypervisor.
type LeaseWaiter interface {
	Lease(ctx context.Context, name string, timeout time.Duration) (string, error)
}

// Prober waits for a VM to become reachable after its domain starts running.
type Prober struct {
	leases       LeaseWaiter
	httpClient   *http.Client
	leaseTimeout time.Duration
	httpTimeout  time.Duration
	log          *logrus.Entry
}

// Option configures a Prober.
type Option func(*Prober)

// WithLeaseTimeout overrides DefaultLeaseTimeout.
func WithLeaseTimeout(d time.Duration) Option {
	return func(p *Prober) { p.leaseTimeout = d }
}

// WithHTTPTimeout overrides DefaultHTTPTimeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(p *Prober) { p.httpTimeout = d }
}

// WithLogger attaches a logger; a nil logger discards output.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Prober) {
		if log == nil {
			discard := logrus.New()
			discard.SetOutput(io.Discard)
			log = logrus.NewEntry(discard)
		}
		p.log = log
	}
}

// WithHTTPClient overrides the client used for readiness probes, mainly for
// tests that point at an httptest.Server.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.httpClient = c }
}

// New returns a Prober with the default timeouts.
func New(leases LeaseWaiter, opts ...Option) *Prober {
	p := &Prober{
		leases:       leases,
		httpClient:   &http.Client{},
		leaseTimeout: DefaultLeaseTimeout,
		httpTimeout:  DefaultHTTPTimeout,
		log:          logrus.NewEntry(logrus.StandardLogger()).WithField("discard", true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait obtains vm's lease, then — if vm.Port is set — polls HTTP on that
// port with the Host header set to vm.Domain, until a 2xx/3xx response or
// timeout. Returns the leased IPv4 and whether the HTTP probe succeeded.
// A zero port skips the HTTP phase and reports httpOK=true.
func (p *Prober) Wait(ctx context.Context, vm spec.VMSpec) (ip string, httpOK bool, err error) {
	log := p.log.WithFields(logrus.Fields{"vm": vm.Name, "op": "ready", "phase": "lease"})
	log.Debug("waiting for DHCP lease")

	ip, err = p.leases.Lease(ctx, vm.Name, p.leaseTimeout)
	if err != nil {
		return "", false, err
	}
	log.WithField("ip", ip).Debug("lease acquired")

	if vm.Port == 0 {
		return ip, true, nil
	}

	ok, err := p.pollHTTP(ctx, vm, ip)
	return ip, ok, err
}

func (p *Prober) pollHTTP(ctx context.Context, vm spec.VMSpec, ip string) (bool, error) {
	log := p.log.WithFields(logrus.Fields{"vm": vm.Name, "op": "ready", "phase": "http"})
	url := fmt.Sprintf("http://%s:%d/", ip, vm.Port)

	deadline := time.Now().Add(p.httpTimeout)
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if probeOnce(ctx, p.httpClient, url, vm.Domain) {
			log.Debug("http readiness achieved")
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, dockerr.New(dockerr.HTTPTimeout, vm.Name, "check the guest's container/service logs", fmt.Errorf("no 2xx/3xx response from %s within %s", url, p.httpTimeout))
		}

		// Clamp the final wait to the deadline so a failing poll returns
		// within about a second of its timeout instead of overshooting by
		// a full backoff interval.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2))
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, dockerr.New(dockerr.Cancelled, vm.Name, "", ctx.Err())
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func probeOnce(ctx context.Context, client *http.Client, url, host string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Host = host

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
