package rpcprovider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// New selects the transport by URL scheme: ws[s]:// gets a streaming
// subscription, anything else is treated as JSON-RPC over HTTP(S).
func New(ctx context.Context, endpoint string, retry *RetryConfig) (Provider, error) {
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse rpc endpoint %q: %w", endpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return newWSProvider(ctx, endpoint, retry)
	case "http", "https":
		return newHTTPProvider(ctx, endpoint, retry)
	default:
		return nil, fmt.Errorf("unsupported rpc endpoint scheme %q (expected http[s] or ws[s])", u.Scheme)
	}
}
