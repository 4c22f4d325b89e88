// Package mock provides a scripted fake of the control plane for tests.
// Routes answer with a queue of replies; once the queue is down to its last
// reply, that reply is repeated.
package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// OperationsPath is where the fake serves operation status and results.
const OperationsPath = "/v1/operations"

// Reply is one scripted response.
type Reply struct {
	Status int
	Header map[string]string
	Body   string
}

// JSON builds a reply whose body is v encoded as JSON.
func JSON(status int, v any) Reply {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock: encoding reply: %v", err))
	}
	return Reply{Status: status, Header: map[string]string{"Content-Type": "application/json"}, Body: string(data)}
}

// Accepted is the 202 a long-running operation starts with.
func Accepted(operationID string) Reply {
	r := Reply{Status: http.StatusAccepted, Header: map[string]string{}}
	if operationID != "" {
		r.Header["x-ms-operation-id"] = operationID
		r.Header["Location"] = OperationsPath + "/" + operationID
	}
	return r
}

// RecordedRequest is a request as the fake received it.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Platform is an httptest server answering scripted routes.
type Platform struct {
	Server *httptest.Server

	// Token, when set, is the only bearer token accepted.
	Token string

	mu       sync.Mutex
	routes   map[string][]Reply
	requests []RecordedRequest
}

// NewPlatform starts a fake with no routes. Unknown routes answer 404.
func NewPlatform() *Platform {
	p := &Platform{routes: make(map[string][]Reply)}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

func (p *Platform) URL() string { return p.Server.URL }

func (p *Platform) OperationsBaseURL() string { return p.Server.URL + OperationsPath }

func (p *Platform) Close() { p.Server.Close() }

// On scripts the replies for method and path, replacing earlier ones.
func (p *Platform) On(method, path string, replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[key(method, path)] = append([]Reply(nil), replies...)
}

// Operation scripts the status endpoint of operation id to report statuses
// in order, and its result endpoint to answer with result.
func (p *Platform) Operation(id string, statuses []string, result Reply) {
	replies := make([]Reply, 0, len(statuses))
	for _, s := range statuses {
		body := map[string]any{
			"status":             s,
			"createdTimeUtc":     "2025-03-01T12:00:00.0000000",
			"lastUpdatedTimeUtc": "2025-03-01T12:00:05.0000000",
		}
		if s == "Failed" {
			body["error"] = map[string]string{"errorCode": "OperationFailed", "message": "the operation failed"}
		}
		replies = append(replies, JSON(http.StatusOK, body))
	}
	p.On(http.MethodGet, OperationsPath+"/"+id, replies...)
	p.On(http.MethodGet, OperationsPath+"/"+id+"/result", result)
}

// Requests returns every request received so far, in order.
func (p *Platform) Requests() []RecordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedRequest(nil), p.requests...)
}

// Count returns how many requests hit method and path.
func (p *Platform) Count(method, path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (p *Platform) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.requests = append(p.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	if p.Token != "" && r.Header.Get("Authorization") != "Bearer "+p.Token {
		p.mu.Unlock()
		write(w, JSON(http.StatusUnauthorized, map[string]string{"errorCode": "TokenExpired"}))
		return
	}
	k := key(r.Method, r.URL.Path)
	queue, ok := p.routes[k]
	if !ok || len(queue) == 0 {
		p.mu.Unlock()
		write(w, JSON(http.StatusNotFound, map[string]string{"errorCode": "EntityNotFound", "message": k}))
		return
	}
	reply := queue[0]
	if len(queue) > 1 {
		p.routes[k] = queue[1:]
	}
	p.mu.Unlock()

	write(w, reply)
}

func write(w http.ResponseWriter, reply Reply) {
	for k, v := range reply.Header {
		w.Header().Set(k, v)
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if reply.Body != "" {
		_, _ = io.WriteString(w, reply.Body)
	}
}

func key(method, path string) string {
	return method + " " + path
}
