package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sitewatch/monitor/internal/model"
)

func TestHTTPProbeAvailableOnSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProbe(2, nil)
	out := p.Check(context.Background(), model.Target{URL: srv.URL})

	if !out.Available {
		t.Fatalf("expected available=true, got outcome %+v", out)
	}
	if out.Status == nil || *out.Status != http.StatusOK {
		t.Fatalf("expected status 200, got %+v", out.Status)
	}
}

func TestHTTPProbeUnavailableOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProbe(0, nil)
	out := p.Check(context.Background(), model.Target{URL: srv.URL})

	if out.Available {
		t.Fatalf("expected available=false for 500 status, got %+v", out)
	}
	if out.Status == nil || *out.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %+v", out.Status)
	}
}

func TestHTTPProbeConnectErrorClassifiedAsConnect(t *testing.T) {
	p := NewHTTPProbe(0, nil)
	// Port 1 is reserved and should refuse the connection immediately.
	out := p.Check(context.Background(), model.Target{URL: "http://127.0.0.1:1"})

	if out.Available {
		t.Fatal("expected available=false for connection refused")
	}
	if out.ErrorKind != model.ErrorKindConnect {
		t.Fatalf("expected error-kind connect, got %q", out.ErrorKind)
	}
}

func TestHTTPProbeTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() { close(block); srv.Close() }()

	p := NewHTTPProbe(0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := p.Check(ctx, model.Target{URL: srv.URL})
	if out.Available {
		t.Fatal("expected available=false on timeout")
	}
	if out.ErrorKind != model.ErrorKindTimeout {
		t.Fatalf("expected error-kind timeout, got %q", out.ErrorKind)
	}
}

func TestTimeoutBudget(t *testing.T) {
	cases := []struct {
		intervalSeconds int
		want            time.Duration
	}{
		{60, 30 * time.Second},  // interval-1s=59s > 30s floor -> capped at 30s
		{10, 9 * time.Second},   // interval-1s=9s < 30s -> use interval-1s
		{1, 1 * time.Second},    // interval-1s=0s -> clamp up to 1s minimum
	}
	for _, tc := range cases {
		got := Timeout(tc.intervalSeconds)
		if got != tc.want {
			t.Errorf("Timeout(%d) = %v, want %v", tc.intervalSeconds, got, tc.want)
		}
	}
}
