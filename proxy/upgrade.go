package proxy

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// isUpgradeRequest returns true if and only if there is a "Connection"
// key with the value "Upgrade" in the headers.
func isUpgradeRequest(h http.Header) bool {
	for _, v := range h[http.CanonicalHeaderKey("Connection")] {
		if strings.Contains(strings.ToLower(v), "upgrade") {
			return true
		}
	}
	return false
}

// getUpgradeRequest returns the protocol name from the upgrade header
func getUpgradeRequest(h http.Header) string {
	return strings.Join(h[http.CanonicalHeaderKey("Upgrade")], " ")
}

// upgradeProxy tunnels an upgraded connection between the client and a
// downstream instance.
type upgradeProxy struct {
	insecure bool
}

// serveHTTP dials the backend, forwards the upgrade request and the
// response, and copies the data in both directions until either side
// closes the connection. Errors before hijacking the client connection are
// returned, and the response is left unwritten.
func (p *upgradeProxy) serveHTTP(w http.ResponseWriter, req *http.Request) error {
	backendConn, err := p.dialBackend(req)
	if err != nil {
		return fmt.Errorf("error connecting to backend: %w", err)
	}
	defer backendConn.Close()

	if err := req.Write(backendConn); err != nil {
		return fmt.Errorf("error writing request to backend: %w", err)
	}

	backendReader := bufio.NewReader(backendConn)
	resp, err := http.ReadResponse(backendReader, req)
	if err != nil {
		return fmt.Errorf("error reading response from backend: %w", err)
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return fmt.Errorf("connection of %s cannot be hijacked", req.URL.Path)
	}

	requestHijackedConn, clientReader, err := hj.Hijack()
	if err != nil {
		return fmt.Errorf("error hijacking request connection: %w", err)
	}
	defer requestHijackedConn.Close()
	// NOTE: from this point forward, we own the connection and we can't use
	// w.Header(), w.Write(), or w.WriteHeader any more

	if err := resp.Write(requestHijackedConn); err != nil {
		log.Errorf("Error writing backend response to client: %s", err)
		return nil
	}

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	copyAsync(&wg, backendReader, requestHijackedConn)
	copyAsync(&wg, clientReader.Reader, backendConn)
	log.Debugf("Successfully upgraded to protocol %s by user request", getUpgradeRequest(req.Header))

	// Wait for goroutine to finish, such that the established connection does not break.
	wg.Wait()
	return nil
}

func (p *upgradeProxy) dialBackend(req *http.Request) (net.Conn, error) {
	dialAddr := canonicalAddr(req.URL.Scheme, req.URL.Host)
	ctx := req.Context()

	switch req.URL.Scheme {
	case "http", "ws":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", dialAddr)
	case "https", "wss":
		host, _, err := net.SplitHostPort(dialAddr)
		if err != nil {
			return nil, err
		}

		// system Roots are used
		d := tls.Dialer{Config: &tls.Config{ServerName: host, InsecureSkipVerify: p.insecure}}
		return d.DialContext(ctx, "tcp", dialAddr)
	default:
		return nil, fmt.Errorf("unknown scheme: %s", req.URL.Scheme)
	}
}

// copyAsync closes the destination when the source is exhausted, to unblock
// the opposite direction.
func copyAsync(wg *sync.WaitGroup, src io.Reader, dst net.Conn) {
	go func() {
		defer wg.Done()
		_, err := io.Copy(dst, src)
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("error proxying data from src to dst: %v", err)
		}

		dst.Close()
	}()
}

var portMap = map[string]string{
	"http":  "80",
	"ws":    "80",
	"https": "443",
	"wss":   "443",
}

// canonicalAddr returns the host always with a ":port" suffix
func canonicalAddr(scheme, host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}

	return net.JoinHostPort(host, portMap[scheme])
}
