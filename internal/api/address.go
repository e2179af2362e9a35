package api

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the controller API port used when deriving the base URL
const DefaultPort = 8000

// ResolveBaseURL picks the controller API address.
// An explicit URL wins; otherwise the address is derived from the host the
// panel is published under (pageHost may carry a port, which is replaced);
// with neither, localhost is used. pageHost must come from configuration,
// not from a client request.
func ResolveBaseURL(configured, pageHost, scheme string, port int) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return strings.TrimRight(configured, "/")
	}
	if scheme == "" {
		scheme = "http"
	}
	if port <= 0 {
		port = DefaultPort
	}

	host := hostOnly(pageHost)
	if host == "" {
		host = "localhost"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}

func hostOnly(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	// No port present
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}
