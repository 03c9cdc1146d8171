package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRecordingHost is returned for recording URLs outside the allowed hosts.
// Account credentials are never sent to such a URL.
var ErrRecordingHost = errors.New("telephony: recording url host not allowed")

// RecordingFetcher downloads recordings from the carrier with account
// credentials. A recording may 404 for a moment after the callback fires, so
// not-found responses are retried briefly.
type RecordingFetcher struct {
	http  *resty.Client
	hosts map[string]bool
}

// NewRecordingFetcher only fetches from hosts; an empty list means the
// carrier's API host.
func NewRecordingFetcher(accountSID, authToken string, timeout time.Duration, hosts ...string) *RecordingFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(hosts) == 0 {
		hosts = []string{"api.twilio.com"}
	}
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(strings.TrimSpace(h))] = true
	}
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusNotFound
		})
	if accountSID != "" {
		c.SetBasicAuth(accountSID, authToken)
	}
	return &RecordingFetcher{http: c, hosts: allowed}
}

// Fetch returns the recording bytes. URLs without an extension are served as
// WAV by the carrier.
func (f *RecordingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || !f.hosts[strings.ToLower(u.Hostname())] {
		return nil, fmt.Errorf("%w: %q", ErrRecordingHost, hostOf(u))
	}
	resp, err := f.http.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("telephony: recording download: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telephony: recording download: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func hostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Hostname()
}
