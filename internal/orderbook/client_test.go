package orderbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL, logger.NewNop())
	result, err := client.Submit(context.Background(), &werrors.Order{UID: [56]byte{1}})
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, result.Outcome)
}

func TestSubmitDuplicateTreatedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"duplicate order"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, logger.NewNop())
	result, err := client.Submit(context.Background(), &werrors.Order{UID: [56]byte{2}})
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, result.Outcome)
}

func TestSubmitOtherRejectionStaysRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient balance"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, logger.NewNop())
	result, err := client.Submit(context.Background(), &werrors.Order{UID: [56]byte{3}})
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, result.Outcome)
}
