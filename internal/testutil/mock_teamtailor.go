// Package testutil provides a scripted Teamtailor API server for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIPrefix is the path prefix the mock serves, mirroring api.teamtailor.com/v1.
const APIPrefix = "/v1"

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTeamtailor is a configurable mock of the candidates endpoint.
//
// Queued responses are served first, in order, regardless of the requested
// page. Once the queue is empty the response registered for the requested
// page[number] is served; unknown pages get 404.
type MockTeamtailor struct {
	server *httptest.Server

	mu          sync.Mutex
	queue       []MockResponse
	pages       map[int]MockResponse
	requests    int
	pageNumbers []int
	lastHeader  http.Header
}

// NewMockTeamtailor creates and starts a mock server.
func NewMockTeamtailor() *MockTeamtailor {
	mock := &MockTeamtailor{
		pages: make(map[int]MockResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(APIPrefix+"/candidates", mock.handleCandidates)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the base URL to configure the client with.
func (m *MockTeamtailor) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockTeamtailor) Close() {
	m.server.Close()
}

// Enqueue appends responses served before any page response.
func (m *MockTeamtailor) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetPage registers the response for a page number.
func (m *MockTeamtailor) SetPage(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// RequestCount returns the number of requests received.
func (m *MockTeamtailor) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// RequestedPages returns the page[number] of every request, in order.
func (m *MockTeamtailor) RequestedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageNumbers...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockTeamtailor) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockTeamtailor) handleCandidates(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page[number]"))

	m.mu.Lock()
	m.requests++
	m.pageNumbers = append(m.pageNumbers, page)
	m.lastHeader = r.Header.Clone()

	var (
		resp MockResponse
		ok   bool
	)
	if len(m.queue) > 0 {
		resp, ok = m.queue[0], true
		m.queue = m.queue[1:]
	} else {
		resp, ok = m.pages[page]
	}
	m.mu.Unlock()

	if !ok {
		resp = NewStatusResponse(http.StatusNotFound)
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 response carrying a JSON:API body.
func NewPageResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":           "application/vnd.api+json",
			"X-Rate-Limit-Limit":     "50",
			"X-Rate-Limit-Remaining": "49",
			"X-Rate-Limit-Reset":     "10",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"status":"429","title":"Too Many Requests"}]}`,
		Headers: map[string]string{
			"Content-Type":           "application/vnd.api+json",
			"X-Rate-Limit-Limit":     "50",
			"X-Rate-Limit-Remaining": "0",
			"X-Rate-Limit-Reset":     "3",
		},
	}
}

// NewStatusResponse creates an error response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"errors":[{"status":"` + strconv.Itoa(status) + `","title":"` + http.StatusText(status) + `"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/vnd.api+json",
		},
	}
}

// Candidate describes a primary record of a generated page.
type Candidate struct {
	ID                string
	FirstName         string
	LastName          string
	Email             string
	JobApplicationIDs []string
}

// JobApplication describes a side-loaded record of a generated page.
type JobApplication struct {
	ID        string
	CreatedAt string
}

// Page describes a generated candidates page.
type Page struct {
	Candidates      []Candidate
	JobApplications []JobApplication
	Next            string
	RecordCount     int
}

// JSON renders the page as a JSON:API document.
func (p Page) JSON() string {
	type identifier struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	type resource struct {
		ID            string         `json:"id"`
		Type          string         `json:"type"`
		Attributes    map[string]any `json:"attributes"`
		Relationships map[string]any `json:"relationships,omitempty"`
	}

	doc := struct {
		Data     []resource        `json:"data"`
		Included []resource        `json:"included"`
		Links    map[string]string `json:"links"`
		Meta     map[string]int    `json:"meta,omitempty"`
	}{
		Data:     []resource{},
		Included: []resource{},
		Links:    map[string]string{},
	}

	for _, c := range p.Candidates {
		res := resource{
			ID:   c.ID,
			Type: "candidates",
			Attributes: map[string]any{
				"first-name": c.FirstName,
				"last-name":  c.LastName,
				"email":      c.Email,
			},
		}
		if len(c.JobApplicationIDs) > 0 {
			ids := make([]identifier, 0, len(c.JobApplicationIDs))
			for _, id := range c.JobApplicationIDs {
				ids = append(ids, identifier{ID: id, Type: "job-applications"})
			}
			res.Relationships = map[string]any{
				"job-applications": map[string]any{"data": ids},
			}
		}
		doc.Data = append(doc.Data, res)
	}

	for _, app := range p.JobApplications {
		doc.Included = append(doc.Included, resource{
			ID:         app.ID,
			Type:       "job-applications",
			Attributes: map[string]any{"created-at": app.CreatedAt},
		})
	}

	if p.Next != "" {
		doc.Links["next"] = p.Next
	}
	if p.RecordCount > 0 {
		doc.Meta = map[string]int{"record-count": p.RecordCount}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(out)
}
