package wsserver

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"servlite/pkg/httpx"
)

// ErrHandshake reports an upgrade request that is missing or carries
// invalid WebSocket handshake headers. The engine answers 400 and closes.
var ErrHandshake = errors.New("websocket handshake failed")

// keyGUID is the fixed GUID appended to the client key when deriving the
// accept key (RFC 6455 §4.2.2).
const keyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptKey derives the Sec-WebSocket-Accept value for a client key.
func acceptKey(clientKey string) string {
	h := sha1.New()
	io.WriteString(h, clientKey+keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// validateUpgrade checks the upgrade request and returns the client key.
func validateUpgrade(req *httpx.Request) (string, error) {
	if req.Method != http.MethodGet {
		return "", fmt.Errorf("%w: method %s", ErrHandshake, req.Method)
	}
	if !headerContains(req.Header.Get("Upgrade"), "websocket") {
		return "", fmt.Errorf("%w: missing Upgrade: websocket", ErrHandshake)
	}
	if !headerContains(req.Header.Get("Connection"), "upgrade") {
		return "", fmt.Errorf("%w: missing Connection: Upgrade", ErrHandshake)
	}
	if v := req.Header.Get("Sec-WebSocket-Version"); v != "13" {
		return "", fmt.Errorf("%w: unsupported version %q", ErrHandshake, v)
	}
	key := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrHandshake)
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
		return "", fmt.Errorf("%w: invalid Sec-WebSocket-Key", ErrHandshake)
	}
	return key, nil
}

// headerContains reports whether a comma-separated header value includes
// token, case-insensitively.
func headerContains(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// writeHandshakeResponse emits the 101 switching-protocols response.
func writeHandshakeResponse(w io.Writer, clientKey string) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(clientKey) + "\r\n\r\n"
	_, err := io.WriteString(w, resp)
	return err
}
