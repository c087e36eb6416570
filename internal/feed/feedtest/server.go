package feedtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is an in-process feed that counts accepted sessions.
type Server struct {
	*httptest.Server
	sessions atomic.Int32
}

// Sessions returns how many sessions the server has accepted.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

// WebSocketURL returns the server URL with a ws scheme.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// NewSocketServer writes frames as text messages on every session, then holds
// the connection until the client goes away.
func NewSocketServer(frames ...string) *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.sessions.Add(1)
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return s
}

// NewStreamServer writes lines as a text/event-stream on every session and
// then ends the response.
func NewStreamServer(lines ...string) *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	return s
}

// NewStatusServer answers every request with code.
func NewStatusServer(code int) *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Add(1)
		http.Error(w, http.StatusText(code), code)
	}))
	return s
}
