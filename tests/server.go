package tests

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jfrog/build-promotion-go/httpclient"
	"github.com/stretchr/testify/require"
)

// RecordedRequest is a request received by a RecordingServer.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// RecordingServer is an HTTP test server that records every request it receives before
// passing it to its handler. It's safe for concurrent requests.
type RecordingServer struct {
	*httptest.Server
	mutex    sync.Mutex
	requests []RecordedRequest
	counts   map[string]int
}

// NewRecordingServer starts the server and registers its shutdown in the test cleanup.
// The body of the request passed to handler can be read again.
func NewRecordingServer(t *testing.T, handler http.HandlerFunc) *RecordingServer {
	rs := &RecordingServer{counts: map[string]int{}}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		recorded := RecordedRequest{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Header: r.Header.Clone(), Body: body}
		rs.mutex.Lock()
		rs.requests = append(rs.requests, recorded)
		rs.counts[r.Method+" "+r.URL.Path]++
		rs.mutex.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

// Client returns a client bound to the server root.
func (rs *RecordingServer) Client(t *testing.T, username, password string) *httpclient.Client {
	client, err := httpclient.New(httpclient.Details{Url: rs.URL, Username: username, Password: password})
	require.NoError(t, err)
	return client
}

func (rs *RecordingServer) Requests() []RecordedRequest {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	return append([]RecordedRequest(nil), rs.requests...)
}

// Count returns the number of requests received with the method and path.
func (rs *RecordingServer) Count(method, path string) int {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	return rs.counts[method+" "+path]
}

// CountMethod returns the number of requests received with the method, whatever their path.
func (rs *RecordingServer) CountMethod(method string) int {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	count := 0
	for _, request := range rs.requests {
		if request.Method == method {
			count++
		}
	}
	return count
}
