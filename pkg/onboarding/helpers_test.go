package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/natserract/onboarding/pkg/config"
	httpclient "github.com/natserract/onboarding/pkg/http"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAuthenticator hands out "token-1", "token-2", ... unless err is set.
type fakeAuthenticator struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
	// block, when set, is waited on before answering.
	block chan struct{}
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context) (string, error) {
	n := a.calls.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	a.mu.Lock()
	err := a.err
	a.mu.Unlock()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("token-%d", n), nil
}

func (a *fakeAuthenticator) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

type importRequestRecord struct {
	DataSource     string
	CorrelationID  string
	HasCorrelation bool
	Authorization  string
	Body           map[string]json.RawMessage
}

// fakeService emulates the ingestion service endpoints.
type fakeService struct {
	t *testing.T

	authCalls   atomic.Int32
	importCalls atomic.Int32

	mu          sync.Mutex
	authStatus  int
	importCodes []int // consumed one per import call; last one repeats
	importBody  string
	imports     []importRequestRecord
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	s := &fakeService{
		t:           t,
		authStatus:  http.StatusOK,
		importCodes: []int{http.StatusOK},
		importBody:  `{"batchId":"batch-1","status":"Queued"}`,
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.Equal(s.t, http.MethodPost, r.Method)

	switch {
	case r.URL.Path == "/dataProviders/tokens":
		n := s.authCalls.Add(1)
		var body map[string]string
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(s.t, "provider", body["id"])
		require.Equal(s.t, "secret", body["secret"])

		s.mu.Lock()
		status := s.authStatus
		s.mu.Unlock()
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = fmt.Fprintf(w, `{"result":{"accessToken":"server-token-%d"}}`, n)
		}

	case strings.HasPrefix(r.URL.Path, "/import/"):
		s.importCalls.Add(1)
		var body map[string]json.RawMessage
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))

		_, hasCorrelation := r.URL.Query()["correlationId"]
		s.mu.Lock()
		s.imports = append(s.imports, importRequestRecord{
			DataSource:     strings.TrimPrefix(r.URL.Path, "/import/"),
			CorrelationID:  r.URL.Query().Get("correlationId"),
			HasCorrelation: hasCorrelation,
			Authorization:  r.Header.Get("Authorization"),
			Body:           body,
		})
		status := s.importCodes[0]
		if len(s.importCodes) > 1 {
			s.importCodes = s.importCodes[1:]
		}
		respBody := s.importBody
		s.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeService) setImportCodes(codes ...int) {
	s.mu.Lock()
	s.importCodes = codes
	s.mu.Unlock()
}

func (s *fakeService) setImportBody(body string) {
	s.mu.Lock()
	s.importBody = body
	s.mu.Unlock()
}

func (s *fakeService) setAuthStatus(status int) {
	s.mu.Lock()
	s.authStatus = status
	s.mu.Unlock()
}

func (s *fakeService) lastImport() importRequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.imports)
	return s.imports[len(s.imports)-1]
}

func testConfig(baseURI string) *config.Config {
	return &config.Config{
		BaseURI:        baseURI,
		ProviderID:     "provider",
		ProviderSecret: "secret",
		RequestTimeout: 5 * time.Second,
		BatchSize:      100,
		MaxConcurrency: 2,
	}
}

func newTestTransport(t *testing.T) *httpclient.Client {
	return httpclient.NewClientWithLogger(zaptest.NewLogger(t))
}

// newRecordingServer accepts every request and returns a getter for the last
// escaped request path.
func newRecordingServer(t *testing.T) (string, func() string) {
	var (
		mu   sync.Mutex
		last string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.EscapedPath()
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv.URL, func() string {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}
