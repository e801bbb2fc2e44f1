package base

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a parsed RTSP response. The framer hands S a complete
// "RTSP/... \r\n\r\n" slice (§4.F), so parsing never touches a body: any
// response content beyond the blank-line terminator is out of scope (DESCRIBE
// responses are accepted but their body is ignored, per §4.S).
type Response struct {
	StatusCode    int
	StatusMessage string
	Header        Header
}

// ParseResponse parses a complete response slice as delivered by the framer.
func ParseResponse(raw []byte) (*Response, error) {
	text := strings.TrimRight(string(raw), "\r\n")
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("base: empty response")
	}

	statusLine := lines[0]
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("base: malformed status line %q", statusLine)
	}
	if parts[0] != protocol10 {
		return nil, fmt.Errorf("base: unsupported protocol %q", parts[0])
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("base: invalid status code %q: %w", parts[1], err)
	}

	msg := ""
	if len(parts) == 3 {
		msg = parts[2]
	}

	return &Response{
		StatusCode:    code,
		StatusMessage: msg,
		Header:        parseHeaderLines(lines[1:]),
	}, nil
}
