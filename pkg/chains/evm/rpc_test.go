package evm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct {
	hits  *atomic.Int32
	block uint64
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.hits.Add(1)
	return hexutil.Uint64(s.block)
}

// endpoint is a test RPC endpoint that records how often it was probed
type endpoint struct {
	URL  string
	hits atomic.Int32
}

func (e *endpoint) Hits() int { return int(e.hits.Load()) }

func healthyEndpoint(t *testing.T) *endpoint {
	t.Helper()
	e := &endpoint{}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethService{hits: &e.hits, block: 42}))
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		server.Stop()
	})
	e.URL = srv.URL
	return e
}

func deadEndpoint(t *testing.T) *endpoint {
	t.Helper()
	e := &endpoint{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	e.URL = srv.URL
	return e
}

func testRegistry(private []string, public ...string) *chains.Registry {
	return chains.NewRegistry(chains.ChainConfig{
		ChainID:        137,
		Name:           "Polygon",
		NativeCurrency: chains.NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:        public,
		PrivateRPCURLs: private,
	})
}

func newTestConnector(registry *chains.Registry) *Connector {
	return NewConnector(registry, nil, WithRetryDelay(time.Millisecond), WithProbeTimeout(2*time.Second))
}

func TestConnectorPrefersPrivateEndpoint(t *testing.T) {
	private := healthyEndpoint(t)
	public := healthyEndpoint(t)
	c := newTestConnector(testRegistry([]string{private.URL}, public.URL))

	reader, err := c.Connect(context.Background(), 137, 3)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, private.URL, reader.Endpoint)
	assert.Equal(t, uint64(137), reader.ChainID)
	assert.Equal(t, 1, private.Hits())
	assert.Equal(t, 0, public.Hits())
}

func TestConnectorFallsBackToPublicEndpoints(t *testing.T) {
	private := deadEndpoint(t)
	down := deadEndpoint(t)
	up := healthyEndpoint(t)
	c := newTestConnector(testRegistry([]string{private.URL}, down.URL, up.URL))

	reader, err := c.Connect(context.Background(), 137, 3)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, up.URL, reader.Endpoint)
	assert.Equal(t, 1, private.Hits())
	assert.Equal(t, 1, down.Hits())

	block, err := reader.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)
}

func TestConnectorAllEndpointsExhausted(t *testing.T) {
	a := deadEndpoint(t)
	b := deadEndpoint(t)
	c := newTestConnector(testRegistry(nil, a.URL, b.URL))

	_, err := c.Connect(context.Background(), 137, 3)
	require.Error(t, err)
	assert.Equal(t, wallet.CodeRPCAllEndpointsFailed, wallet.CodeOf(err))

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "last underlying failure is carried")
	assert.Equal(t, b.URL, rpcErr.Endpoint)

	assert.Equal(t, 3, a.Hits())
	assert.Equal(t, 3, b.Hits())
}

func TestConnectorZeroRetriesMakesOnePass(t *testing.T) {
	a := deadEndpoint(t)
	c := newTestConnector(testRegistry(nil, a.URL))

	_, err := c.Connect(context.Background(), 137, 0)
	require.Error(t, err)
	assert.Equal(t, 1, a.Hits())
}

func TestConnectorIsNotSticky(t *testing.T) {
	first := healthyEndpoint(t)
	second := healthyEndpoint(t)
	c := newTestConnector(testRegistry(nil, first.URL, second.URL))

	for i := 0; i < 2; i++ {
		reader, err := c.Connect(context.Background(), 137, 1)
		require.NoError(t, err)
		assert.Equal(t, first.URL, reader.Endpoint)
		reader.Close()
	}
	assert.Equal(t, 2, first.Hits())
	assert.Equal(t, 0, second.Hits())
}

func TestConnectorUnsupportedChain(t *testing.T) {
	c := newTestConnector(testRegistry(nil))

	_, err := c.Connect(context.Background(), 1, 3)
	require.Error(t, err)
	assert.Equal(t, wallet.CodeRPCAllEndpointsFailed, wallet.CodeOf(err))

	var unsupported *UnsupportedChainError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, uint64(1), unsupported.ChainID)
}

func TestConnectorNoPublicEndpoints(t *testing.T) {
	c := newTestConnector(testRegistry(nil))

	_, err := c.Connect(context.Background(), 137, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no RPC endpoints configured")
}

func TestConnectorStopsOnCancelledContext(t *testing.T) {
	a := deadEndpoint(t)
	c := NewConnector(testRegistry(nil, a.URL), nil, WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = c.Connect(ctx, 137, 5)
	}()

	require.Eventually(t, func() bool { return a.Hits() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, a.Hits())
}

func TestConnectorUsesEndpointProvider(t *testing.T) {
	discovered := healthyEndpoint(t)
	c := NewConnector(testRegistry(nil), nil, WithEndpointProvider(fixedEndpoints{discovered.URL}))

	reader, err := c.Connect(context.Background(), 137, 1)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, discovered.URL, reader.Endpoint)
}

func TestIsEndpointHealthy(t *testing.T) {
	up := healthyEndpoint(t)
	down := deadEndpoint(t)

	assert.True(t, isEndpointHealthy(context.Background(), up.URL))
	assert.False(t, isEndpointHealthy(context.Background(), down.URL))
}

type fixedEndpoints []string

func (f fixedEndpoints) Endpoints(uint64) []string { return f }

func TestStripBlockTimestampFromLogs(t *testing.T) {
	raw := []byte(`{"status":"0x1","logs":[{"address":"0x01","blockTimestamp":"0x5"}]}`)

	cleaned, err := stripBlockTimestampFromLogs(raw)
	require.NoError(t, err)
	assert.NotContains(t, string(cleaned), "blockTimestamp")
	assert.Contains(t, string(cleaned), `"address":"0x01"`)
}
