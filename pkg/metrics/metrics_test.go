package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()

	owned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_owned_total",
		Help: "Owned test counter",
	})
	reg.MustRegister(owned)
	owned.Add(3)

	ObserveHTTPRequest("/health", http.MethodGet, http.StatusOK, 10*time.Millisecond)

	server := httptest.NewServer(reg.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	output := string(body)

	if !strings.Contains(output, "test_owned_total 3") {
		t.Errorf("Expected owned counter in output")
	}
	if !strings.Contains(output, `http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Errorf("Expected http_requests_total in output")
	}
	if !strings.Contains(output, "go_goroutines") {
		t.Errorf("Expected Go runtime metrics in output")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})
	if err := reg.Register(c); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := reg.Register(c); err == nil {
		t.Error("second Register() error = nil, want AlreadyRegisteredError")
	}
}
