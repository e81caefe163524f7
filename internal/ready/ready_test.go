package ready

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

type fakeLeaseWaiter struct {
	ip  string
	err error
}

func (f *fakeLeaseWaiter) Lease(ctx context.Context, name string, timeout time.Duration) (string, error) {
	return f.ip, f.err
}

func testVM(port int) spec.VMSpec {
	return spec.VMSpec{Name: "demo", Domain: "demo.local", Image: "nginx:latest", Port: port}
}

func TestWait_NoPortSkipsHTTP(t *testing.T) {
	p := New(&fakeLeaseWaiter{ip: "192.0.2.5"})
	ip, ok, err := p.Wait(context.Background(), testVM(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "192.0.2.5", ip)
}

func TestWait_LeaseErrorPropagates(t *testing.T) {
	p := New(&fakeLeaseWaiter{err: dockerr.New(dockerr.LeaseTimeout, "demo", "", nil)})
	_, _, err := p.Wait(context.Background(), testVM(80))
	require.Error(t, err)
	require.True(t, dockerr.Is(err, dockerr.LeaseTimeout))
}

func TestWait_HTTPSucceedsOnFirstTry(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	p := New(&fakeLeaseWaiter{ip: "127.0.0.1"}, WithHTTPClient(srv.Client()), WithHTTPTimeout(2*time.Second))
	vm := testVM(port)
	ip, ok, err := p.Wait(context.Background(), vm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", ip)
	require.Equal(t, vm.Domain, gotHost)
}

func TestWait_HTTPTimesOutWhenPortClosed(t *testing.T) {
	p := New(&fakeLeaseWaiter{ip: "127.0.0.1"}, WithHTTPTimeout(200*time.Millisecond))
	_, _, err := p.Wait(context.Background(), testVM(1))
	require.Error(t, err)
	require.True(t, dockerr.Is(err, dockerr.HTTPTimeout))
}

func TestWait_HTTPTimeoutReturnsNearDeadline(t *testing.T) {
	// The backoff wait is clamped to the deadline, so the failing path must
	// return within about a second of the configured timeout rather than
	// overshooting by a full backoff interval.
	const timeout = 2 * time.Second
	p := New(&fakeLeaseWaiter{ip: "127.0.0.1"}, WithHTTPTimeout(timeout))

	start := time.Now()
	_, _, err := p.Wait(context.Background(), testVM(1))
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, dockerr.Is(err, dockerr.HTTPTimeout))
	require.Less(t, elapsed, timeout+time.Second, "poll overshot its deadline")
	require.GreaterOrEqual(t, elapsed, timeout, "poll gave up before its deadline")
}

func TestWait_CancellationDuringHTTPPoll(t *testing.T) {
	p := New(&fakeLeaseWaiter{ip: "127.0.0.1"}, WithHTTPTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := p.Wait(ctx, testVM(1))
	require.Error(t, err)
	require.True(t, dockerr.Is(err, dockerr.Cancelled))
}
