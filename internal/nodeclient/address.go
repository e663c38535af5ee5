package nodeclient

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// ResolveNodeURL normalizes a node address into a base URL without trailing
// slash. Multiaddrs such as /dns4/node.example/tcp/443/https are accepted.
func ResolveNodeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNode)
	}
	if strings.HasPrefix(raw, "/") {
		return multiaddrToURL(raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidNode, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidNode)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

func multiaddrToURL(raw string) (string, error) {
	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	host := ""
	for _, code := range []int{ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_IP4, ma.P_IP6} {
		if v, err := addr.ValueForProtocol(code); err == nil && v != "" {
			host = v
			break
		}
	}
	if host == "" {
		return "", fmt.Errorf("%w: multiaddr %s has no host", ErrInvalidNode, raw)
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("%w: multiaddr %s has no tcp port", ErrInvalidNode, raw)
	}
	scheme := "http"
	if _, err := addr.ValueForProtocol(ma.P_HTTPS); err == nil {
		scheme = "https"
	} else if _, err := addr.ValueForProtocol(ma.P_TLS); err == nil {
		scheme = "https"
	}
	hostPort := net.JoinHostPort(host, port)
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		hostPort = host
		if strings.Contains(host, ":") {
			hostPort = "[" + host + "]"
		}
	}
	return scheme + "://" + hostPort, nil
}
