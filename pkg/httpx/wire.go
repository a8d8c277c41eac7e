package httpx

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRequest reports a request that violates HTTP/1.x framing:
// a missing or invalid request line, broken header framing, or a body
// that does not match its declared Content-Length.
var ErrMalformedRequest = errors.New("malformed request")

const (
	// MaxRequestLineBytes bounds the request line to keep a hostile peer
	// from growing the read buffer without ever completing a request.
	MaxRequestLineBytes = 8 << 10
	// MaxHeaderBytes bounds the total header block.
	MaxHeaderBytes = 64 << 10
	// DefaultMaxBodyBytes is the body cap applied when the server does not
	// configure its own.
	DefaultMaxBodyBytes = 1 << 20

	serverName = "servlite"
)

var validMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodHead: {}, http.MethodPost: {},
	http.MethodPut: {}, http.MethodPatch: {}, http.MethodDelete: {},
	http.MethodOptions: {},
}

// ReadRequest reads one complete request from br: a request line, headers
// terminated by an empty line, and a body of declared Content-Length.
// It returns io.EOF when the connection closes cleanly before any byte of
// a new request, and ErrMalformedRequest (wrapped) on framing violations.
func ReadRequest(br *bufio.Reader, remoteAddr string, maxBody int64) (*Request, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	line, err := readLine(br, MaxRequestLineBytes)
	if err != nil {
		if line == "" && !errors.Is(err, errLineTooLong) {
			// nothing consumed: propagate the raw I/O error (clean close,
			// deadline expiry, reset) so callers can tell it from a
			// protocol violation
			return nil, err
		}
		return nil, fmt.Errorf("%w: request line: %v", ErrMalformedRequest, err)
	}
	// skip a stray blank line before the request line (lenient, like
	// net/http) but never more than one
	if line == "" {
		line, err = readLine(br, MaxRequestLineBytes)
		if err != nil || line == "" {
			return nil, fmt.Errorf("%w: empty request line", ErrMalformedRequest)
		}
	}

	method, target, proto, ok := parseRequestLine(line)
	if !ok {
		return nil, fmt.Errorf("%w: bad request line %q", ErrMalformedRequest, line)
	}
	if _, ok := validMethods[method]; !ok {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrMalformedRequest, method)
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrMalformedRequest, proto)
	}

	header, err := readHeaderBlock(br)
	if err != nil {
		return nil, err
	}

	// chunked and other transfer codings are out of scope; reject rather
	// than misinterpret the framing
	if te := header.Get("Transfer-Encoding"); te != "" {
		return nil, fmt.Errorf("%w: transfer-encoding %q not supported", ErrMalformedRequest, te)
	}

	var body []byte
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid content-length %q", ErrMalformedRequest, cl)
		}
		if n > maxBody {
			return nil, fmt.Errorf("%w: body of %d bytes exceeds limit", ErrMalformedRequest, n)
		}
		body = make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: short body: %v", ErrMalformedRequest, err)
		}
	}

	path, query := splitTarget(target)
	if path == "" || path[0] != '/' {
		return nil, fmt.Errorf("%w: bad request target %q", ErrMalformedRequest, target)
	}

	return &Request{
		Method:     method,
		Path:       path,
		Proto:      proto,
		Header:     header,
		Query:      parseQuery(query),
		Params:     map[string]string{},
		Body:       body,
		RemoteAddr: remoteAddr,
	}, nil
}

// KeepAlive reports whether the client side of the exchange permits reuse
// of the connection: HTTP/1.1 defaults to on, HTTP/1.0 to off, and an
// explicit Connection header wins either way.
func (r *Request) KeepAlive() bool {
	c := strings.ToLower(r.Header.Get("Connection"))
	switch {
	case strings.Contains(c, "close"):
		return false
	case strings.Contains(c, "keep-alive"):
		return true
	default:
		return r.Proto == "HTTP/1.1"
	}
}

// WriteResponse serializes resp to w with correct Content-Length and an
// explicit Connection header reflecting the server's keep-alive decision.
func WriteResponse(w io.Writer, resp *Response, keepAlive bool) error {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	reason := http.StatusText(status)
	if reason == "" {
		reason = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(&b, "Server: %s\r\n", serverName)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resp.Body))
	if len(resp.Body) > 0 && resp.Header.Get("Content-Type") == "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", "application/octet-stream")
	}
	for k, vs := range resp.Header {
		// emitted explicitly above / decided by the dispatcher
		if k == "Content-Length" || k == "Connection" || k == "Date" || k == "Server" {
			continue
		}
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	if keepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return err
		}
	}
	return nil
}

// readHeaderBlock reads header lines up to the terminating empty line,
// enforcing MaxHeaderBytes across the whole block before handing the
// collected bytes to textproto for MIME parsing.
func readHeaderBlock(br *bufio.Reader) (http.Header, error) {
	var block []byte
	for {
		line, err := readLine(br, MaxHeaderBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: headers: %v", ErrMalformedRequest, err)
		}
		if len(block)+len(line)+2 > MaxHeaderBytes {
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", ErrMalformedRequest, MaxHeaderBytes)
		}
		if line == "" {
			block = append(block, '\r', '\n')
			break
		}
		block = append(block, line...)
		block = append(block, '\r', '\n')
	}
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: headers: %v", ErrMalformedRequest, err)
	}
	return http.Header(mimeHeader), nil
}

var errLineTooLong = errors.New("line too long")

// readLine reads one CRLF- or LF-terminated line without the terminator.
// The cap is enforced while reading, so a peer streaming an endless line
// fails at max bytes instead of growing the buffer until EOF. On error
// the bytes consumed so far are returned alongside it so callers can
// distinguish "nothing read" from a truncated line.
func readLine(br *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		frag, err := br.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > max {
			return string(buf), fmt.Errorf("%w: exceeds %d bytes", errLineTooLong, max)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(buf) == 0 {
				return "", io.EOF
			}
			return strings.TrimRight(string(buf), "\r\n"), err
		}
		return strings.TrimRight(string(buf), "\r\n"), nil
	}
}

func parseRequestLine(line string) (method, target, proto string, ok bool) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// parseQuery decodes a query string keeping the first value per key.
// Undecodable pairs are skipped rather than failing the whole request.
func parseQuery(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return out
	}
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
