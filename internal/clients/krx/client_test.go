package krx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/common"
)

// fakePortal emulates the handshake-then-download flow: constituent requests
// without a valid token are rejected.
func fakePortal(t *testing.T, handshakes *int32, members []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/comm/session/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(handshakes, 1)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		json.NewEncoder(w).Encode(map[string]string{"token": "otp-token-1"})
	})
	mux.HandleFunc("/comm/index/constituents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("otp") != "otp-token-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if cookie, err := r.Cookie("JSESSIONID"); err != nil || cookie.Value != "abc123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		resp := constituentsResponse{}
		for _, m := range members {
			resp.Members = append(resp.Members, struct {
				Ticker string `json:"ticker"`
				Name   string `json:"name"`
			}{Ticker: m})
		}
		json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *Client {
	return NewClient(
		WithBaseURL(baseURL),
		WithLogger(common.NewSilentLogger()),
		WithRateLimit(1000),
	)
}

func TestGetConstituentsHandshake(t *testing.T) {
	var handshakes int32
	srv := fakePortal(t, &handshakes, []string{"005930", "000660", "005930", "", "373220"})
	defer srv.Close()

	members, err := newTestClient(srv.URL).GetConstituents(context.Background(), "1028")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// duplicates and blanks removed, order preserved
	want := []string{"005930", "000660", "373220"}
	if len(members) != len(want) {
		t.Fatalf("expected %d members, got %d: %v", len(want), len(members), members)
	}
	for i, m := range want {
		if members[i] != m {
			t.Errorf("member %d: expected %s, got %s", i, m, members[i])
		}
	}
	if atomic.LoadInt32(&handshakes) != 1 {
		t.Errorf("expected 1 handshake, got %d", handshakes)
	}
}

func TestSessionReusedAcrossCalls(t *testing.T) {
	var handshakes int32
	srv := fakePortal(t, &handshakes, []string{"005930"})
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.GetConstituents(context.Background(), "1028"); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	if atomic.LoadInt32(&handshakes) != 1 {
		t.Errorf("expected session reuse with 1 handshake, got %d", handshakes)
	}
}

func TestSessionRefreshAfterTTL(t *testing.T) {
	var handshakes int32
	srv := fakePortal(t, &handshakes, []string{"005930"})
	defer srv.Close()

	c := newTestClient(srv.URL)
	now := time.Now()
	c.now = func() time.Time { return now }

	if _, err := c.GetConstituents(context.Background(), "1028"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	now = now.Add(DefaultSessionTTL + time.Minute)
	if _, err := c.GetConstituents(context.Background(), "1028"); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if atomic.LoadInt32(&handshakes) != 2 {
		t.Errorf("expected fresh handshake after TTL, got %d handshakes", handshakes)
	}
}

func TestGetConstituentsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/comm/session/generate" {
			json.NewEncoder(w).Encode(map[string]string{"token": "t"})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetConstituents(context.Background(), "1028")
	if err == nil {
		t.Fatal("expected error from unavailable upstream")
	}
}
