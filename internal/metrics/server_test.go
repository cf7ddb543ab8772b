package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/go-http-ramp/internal/logging"
)

func newTestServer(t *testing.T, reg *Registry) *httptest.Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", "/metrics", reg, logging.Discard())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestServer_ScrapeTextFormat(t *testing.T) {
	reg := NewRegistry(Options{})
	for i := 0; i < 3; i++ {
		reg.IncrementRequests()
		reg.Record(Success{StatusCode: 200, Latency: 4 * time.Millisecond})
	}
	reg.IncrementRequests()
	reg.Record(Failure{Kind: FailureTransport})

	ts := newTestServer(t, reg)
	resp, body := get(t, ts.URL+"/metrics", nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}

	for _, want := range []string{
		"requests_total 4",
		"failed_requests_total 1",
		`status_code_counter{status="200"} 3`,
		`status_code_counter{status="error"} 1`,
		"response_time_milliseconds_count 3",
		`response_time_milliseconds_bucket{le="5"} 3`,
		`response_time_milliseconds_bucket{le="+Inf"} 3`,
		`ramp_state{state="idle"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape body missing %q", want)
		}
	}
}

func TestServer_ScrapeProtobufNegotiation(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.IncrementRequests()
	reg.IncrementRequests()
	ts := newTestServer(t, reg)

	header := http.Header{}
	header.Set("Accept", "application/vnd.google.protobuf;proto=io.prometheus.client.MetricFamily;encoding=delimited")
	resp, body := get(t, ts.URL+"/metrics", header)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/vnd.google.protobuf") {
		t.Errorf("Content-Type = %q, want protobuf", ct)
	}

	dec := expfmt.NewDecoder(strings.NewReader(body), expfmt.NewFormat(expfmt.TypeProtoDelim))
	found := false
	for {
		var mf dto.MetricFamily
		if err := dec.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("Decode() error = %v", err)
		}
		if mf.GetName() == RequestsTotalName {
			found = true
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("decoded requests_total = %v, want 2", got)
			}
		}
	}
	if !found {
		t.Error("requests_total missing from protobuf scrape")
	}
}

func TestServer_ScrapesCounted(t *testing.T) {
	reg := NewRegistry(Options{})
	ts := newTestServer(t, reg)

	get(t, ts.URL+"/metrics", nil)
	get(t, ts.URL+"/metrics", nil)

	if got := testutil.ToFloat64(reg.scrapes.WithLabelValues("200")); got != 2 {
		t.Errorf(`exporter_scrapes_total{code="200"} = %v, want 2`, got)
	}
}

// A scrape must never move a counter.
func TestServer_ScrapeIsReadOnly(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.IncrementRequests()
	ts := newTestServer(t, reg)

	for i := 0; i < 5; i++ {
		get(t, ts.URL+"/metrics", nil)
	}
	if got := testutil.ToFloat64(reg.requestsTotal); got != 1 {
		t.Errorf("requests_total after scrapes = %v, want 1", got)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, NewRegistry(Options{}))

	for _, path := range []string{"/health", "/healthz"} {
		resp, body := get(t, ts.URL+path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
		if strings.TrimSpace(body) != "ok" {
			t.Errorf("%s body = %q, want ok", path, body)
		}
	}
}

func TestServer_CustomPath(t *testing.T) {
	reg := NewRegistry(Options{})
	s := NewServer("127.0.0.1:0", "/stats", reg, logging.Discard())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/stats status = %d, want 200", resp.StatusCode)
	}
	resp, _ = get(t, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics", NewRegistry(Options{}), logging.Discard())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !strings.HasPrefix(s.URL(), "http://127.0.0.1:") || strings.HasSuffix(s.Addr(), ":0") {
		t.Errorf("URL() = %q, want bound port", s.URL())
	}

	resp, _ := get(t, s.URL(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	s := NewServer(ln.Addr().String(), "/metrics", NewRegistry(Options{}), logging.Discard())
	if err := s.Start(); err == nil {
		t.Fatal("Start() on a bound port should fail")
	}
}
