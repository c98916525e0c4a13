package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpexport "github.com/ethpandaops/statsd-cloudwatch/internal/export/http"
)

func httpConfig(address string) httpexport.Config {
	return httpexport.Config{
		Address:      address,
		Compression:  httpexport.CompressionNone,
		BatchSize:    10,
		BatchTimeout: 10 * time.Millisecond,
		MaxQueueSize: 100,
	}
}

type ndjsonServer struct {
	mu      sync.Mutex
	records []DatumJSON
}

func (s *ndjsonServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var rec DatumJSON
		if err := json.Unmarshal(scanner.Bytes(), &rec); err == nil {
			s.records = append(s.records, rec)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *ndjsonServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func TestHTTP_Submit(t *testing.T) {
	recv := &ndjsonServer{}
	server := httptest.NewServer(recv)
	defer server.Close()

	h, err := NewHTTP(testLog(), httpConfig(server.URL), "us-east-1")
	require.NoError(t, err)

	h.Start(context.Background())

	require.NoError(t, h.Submit(context.Background(), testBatch()))

	assert.Eventually(t, func() bool {
		return recv.count() == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Shutdown(context.Background()))

	recv.mu.Lock()
	defer recv.mu.Unlock()

	byName := make(map[string]DatumJSON, len(recv.records))
	for _, rec := range recv.records {
		byName[rec.MetricName] = rec
	}

	counter := byName["requests"]
	assert.Equal(t, "us-east-1", counter.Source)
	assert.Equal(t, "App", counter.Namespace)
	assert.Equal(t, "Count", counter.Unit)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", counter.Timestamp)
	require.NotNil(t, counter.Value)
	assert.Equal(t, 12.0, *counter.Value)
	assert.Nil(t, counter.Minimum)

	timer := byName["latency"]
	assert.Nil(t, timer.Value)
	require.NotNil(t, timer.SampleCount)
	assert.Equal(t, 3.0, *timer.SampleCount)
}

func TestToDatumJSON_SourceOverride(t *testing.T) {
	cfg := httpConfig("http://localhost:1")
	cfg.Source = "edge"

	h, err := NewHTTP(testLog(), cfg, "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, "edge", h.source)
	assert.Equal(t, "http", h.Name())
}

func TestNewHTTP_InvalidConfig(t *testing.T) {
	_, err := NewHTTP(testLog(), httpexport.Config{}, "x")
	require.Error(t, err)
}
