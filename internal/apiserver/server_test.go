package apiserver

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/health"
	"github.com/goran-ethernal/watch-tower/internal/logger"
)

func TestHealthHandlerReturns200WithNoChainsRegistered(t *testing.T) {
	chainReg := health.NewChainRegistry()
	agg := health.NewAggregator(chainReg)

	srv := New("127.0.0.1:0", agg, logger.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, "an empty chain registry has no unhealthy chains, so it reports healthy")
}
