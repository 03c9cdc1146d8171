package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRecordingFetcherUsesBasicAuthAndRetriesNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	f := NewRecordingFetcher("AC1", "tok", 5*time.Second, "127.0.0.1")
	body, err := f.Fetch(context.Background(), srv.URL+"/rec/RE1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(body) != "RIFFdata" || hits.Load() != 2 {
		t.Fatalf("unexpected body %q after %d hits", body, hits.Load())
	}
}

func TestRecordingFetcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewRecordingFetcher("AC1", "bad", time.Second, "127.0.0.1").Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRecordingFetcherRejectsForeignHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	f := NewRecordingFetcher("AC1", "tok", time.Second)
	for _, u := range []string{srv.URL + "/rec/RE1", "file:///etc/passwd", "://bad"} {
		if _, err := f.Fetch(context.Background(), u); !errors.Is(err, ErrRecordingHost) {
			t.Fatalf("expected %q rejected, got %v", u, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request to a foreign host, got %d", hits.Load())
	}
}
