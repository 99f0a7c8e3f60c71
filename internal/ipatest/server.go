// Package ipatest provides an in-process FreeIPA JSON-RPC server for tests.
package ipatest

import (
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/isometry/go-freeipa/rpc"
)

const (
	// DefaultUser and DefaultPassword are accepted by every new Server.
	DefaultUser     = "admin"
	DefaultPassword = "Secret123"

	// APIVersion is reported in every response.
	APIVersion = "2.254"

	// PingSummary is returned by the built-in ping handler.
	PingSummary = "IPA server version 4.12.2. API version 2.254"
)

// Handler answers one RPC call with a result or an error payload.
type Handler func(body rpc.RequestBody) (any, *rpc.ErrorPayload)

// RawResponse is written verbatim instead of the normal envelope.
type RawResponse []byte

// Request is a recorded JSON-RPC call.
type Request struct {
	Body   rpc.RequestBody
	Header http.Header
}

// Server is a TLS FreeIPA endpoint backed by registered handlers.
type Server struct {
	*httptest.Server

	// CAPath is a PEM file holding the server certificate.
	CAPath string

	mu       sync.Mutex
	users    map[string]string
	sessions map[string]string
	handlers map[string]Handler
	requests []Request
	logins   int
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		users:    map[string]string{DefaultUser: DefaultPassword},
		sessions: make(map[string]string),
		handlers: make(map[string]Handler),
	}

	s.Handle("ping", func(rpc.RequestBody) (any, *rpc.ErrorPayload) {
		return map[string]any{"summary": PingSummary}, nil
	})
	s.Handle("session_logout", func(rpc.RequestBody) (any, *rpc.ErrorPayload) {
		return nil, nil
	})

	r := chi.NewRouter()
	r.Route("/ipa/session", func(r chi.Router) {
		r.Post("/login_password", s.loginPassword)
		r.Post("/json", s.jsonRPC)
	})

	s.Server = httptest.NewTLSServer(r)
	t.Cleanup(s.Close)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.Certificate().Raw})
	s.CAPath = filepath.Join(t.TempDir(), "ca.crt")
	if err := os.WriteFile(s.CAPath, certPEM, 0o600); err != nil {
		t.Fatalf("writing CA certificate: %v", err)
	}

	return s
}

// AddUser registers credentials accepted by login_password.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Requests returns the JSON-RPC calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent JSON-RPC call.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Logins returns the number of successful password logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// ExpireSessions invalidates every issued session cookie.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

func (s *Server) loginPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, password := r.PostForm.Get("user"), r.PostForm.Get("password")

	s.mu.Lock()
	expected, known := s.users[user]
	ok := known && expected == password
	token := ""
	if ok {
		token = uuid.NewString()
		s.sessions[token] = user
		s.logins++
	}
	s.mu.Unlock()

	if !ok {
		detail := "kinit: Preauthentication failed while getting initial credentials"
		if !known {
			detail = fmt.Sprintf("kinit: Client '%s@EXAMPLE.TEST' not found in Kerberos database while getting initial credentials", user)
		}
		w.Header().Set(rpc.RejectionReasonHeader, "invalid-password")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, "<html>\n<head>\n<title>401 Unauthorized</title>\n</head>\n<body>\n<h1>Invalid Authentication</h1>\n<p>\n<strong>%s</strong>\n</p>\n</body>\n</html>", detail)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     rpc.SessionCookieName,
		Value:    token,
		Path:     "/ipa",
		Secure:   true,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) jsonRPC(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := rpc.ParseRequestBody(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Body: body, Header: r.Header.Clone()})
	handler, found := s.handlers[body.Method()]
	s.mu.Unlock()

	var (
		result  any
		payload *rpc.ErrorPayload
	)
	switch {
	case found:
		result, payload = handler(body)
	case body.Method() == "whoami":
		result = map[string]any{"object": "user", "command": "user_show/1", "arguments": []string{user}}
	default:
		payload = &rpc.ErrorPayload{Name: "CommandError", Code: 905, Message: fmt.Sprintf("unknown command '%s'", body.Method())}
	}

	w.Header().Set("Content-Type", "application/json")
	if raw, isRaw := result.(RawResponse); isRaw {
		_, _ = w.Write(raw)
		return
	}

	if payload != nil {
		result = nil
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result":    result,
		"error":     payload,
		"principal": user + "@EXAMPLE.TEST",
		"id":        body.ID(),
		"version":   APIVersion,
	})
}

func (s *Server) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(rpc.SessionCookieName)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.sessions[cookie.Value]
	return user, ok
}

// Options returns client options pointing at the server and trusting its CA.
func (s *Server) Options(t testing.TB, opts ...rpc.Option) *rpc.Options {
	t.Helper()
	o, err := rpc.NewOptions(s.URL, append([]rpc.Option{rpc.WithCertificatePath(s.CAPath)}, opts...)...)
	if err != nil {
		t.Fatalf("building options: %v", err)
	}
	return o
}

// NotFound returns the error payload FreeIPA uses for missing entries.
func NotFound(message string) *rpc.ErrorPayload {
	return &rpc.ErrorPayload{Name: rpc.NotFoundErrorName, Code: 4001, Message: message}
}
