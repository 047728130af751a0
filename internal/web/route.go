package web

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Route identifies which fixed response a request gets.
type Route int

const (
	RouteNotFound Route = iota
	RouteRoot
	RouteStatus
	RouteToggle
)

func (r Route) String() string {
	switch r {
	case RouteRoot:
		return "root"
	case RouteStatus:
		return "status"
	case RouteToggle:
		return "toggle"
	default:
		return "not_found"
	}
}

// Match classifies a raw request by the leading bytes of its request line.
// Requests that are not valid UTF-8 are not found.
func Match(request []byte) Route {
	if !utf8.Valid(request) {
		return RouteNotFound
	}
	s := string(request)
	switch {
	case strings.HasPrefix(s, "GET / "):
		return RouteRoot
	case strings.HasPrefix(s, "GET /status"):
		return RouteStatus
	case strings.HasPrefix(s, "GET /toggle"):
		return RouteToggle
	default:
		return RouteNotFound
	}
}

// Response is one of the fixed replies.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

const (
	bodyHello    = "Hello World!"
	bodyToggled  = `{"result": "power toggled"}`
	bodyNotFound = "Not Found"
)

// StatusBody returns the /status JSON for a state label.
func StatusBody(state string) string {
	return fmt.Sprintf(`{"power": %q}`, state)
}

// Bytes renders the response as HTTP/1.0 with no keep-alive.
func (r Response) Bytes() []byte {
	reason := "OK"
	if r.Status == 404 {
		reason = "Not Found"
	}
	return []byte(fmt.Sprintf("HTTP/1.0 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		r.Status, reason, r.ContentType, len(r.Body), r.Body))
}

// requestLine returns the first line of the request for logging.
func requestLine(request []byte) string {
	s := string(request)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.ToValidUTF8(s, "?")
}
