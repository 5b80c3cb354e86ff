package filterpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

// Reloader keeps a Policy fresh by periodically re-fetching it from an
// external URL over HTTP on a loop, parsing it as JSON or YAML by
// content type or URL suffix. Reload is driven by wall-clock time rather than block height,
// since polling cadence and block interval are unrelated.
type Reloader struct {
	url        string
	httpClient *http.Client
	interval   time.Duration
	jitter     time.Duration
	log        *logger.Logger

	current atomic.Pointer[Policy]
}

// NewReloader builds a Reloader that has not yet fetched anything;
// Current() returns the permissive Empty() policy until the first
// successful Reload.
func NewReloader(url string, interval time.Duration, log *logger.Logger) *Reloader {
	r := &Reloader{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		interval:   interval,
		jitter:     interval / 5,
		log:        log,
	}
	r.current.Store(Empty())
	return r
}

// Current returns the last successfully loaded policy.
func (r *Reloader) Current() *Policy {
	return r.current.Load()
}

// Reload fetches and parses the policy document once, swapping it in
// only on success. A fetch or parse failure logs and keeps serving the
// last-good snapshot: a bad fetch must never leave the poller without
// a policy.
func (r *Reloader) Reload(ctx context.Context) error {
	policy, err := r.fetch(ctx)
	if err != nil {
		if r.log != nil {
			r.log.Warnw("filter policy reload failed, keeping last snapshot", "url", r.url, "error", err)
		}
		return err
	}
	r.current.Store(policy)
	return nil
}

// Run reloads on a jittered ticker until ctx is cancelled. Each period
// is interval +/- jitter, so a fleet of watchers hitting the same
// policy endpoint doesn't thunder in lockstep.
func (r *Reloader) Run(ctx context.Context) {
	_ = r.Reload(ctx) // failure already logged in Reload; keep running on the stale snapshot

	for {
		wait := r.interval + time.Duration(rand.Int63n(int64(2*r.jitter+1))) - r.jitter
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_ = r.Reload(ctx)
		}
	}
}

func (r *Reloader) fetch(ctx context.Context) (*Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build filter policy request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch filter policy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch filter policy: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read filter policy body: %w", err)
	}

	var policy Policy
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") || strings.HasSuffix(r.url, ".json") {
		err = json.Unmarshal(body, &policy)
	} else {
		err = yaml.Unmarshal(body, &policy)
	}
	if err != nil {
		return nil, fmt.Errorf("parse filter policy: %w", err)
	}

	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionAllow
	}

	return &policy, nil
}
