// Package mjpeg contains the byte-level helpers for multipart/x-mixed-replace
// streams: boundary token extraction and the CRLF repair filter.
package mjpeg

import "strings"

// ExtractBoundary pulls the boundary token out of a Content-Type header value.
// The token runs from after "boundary=" to the next ';' if present, otherwise
// to the next '\r' (some encoders end the header line without a ';'), otherwise
// to the end of the string. Quotes and a redundant leading "--" are stripped;
// both forms are seen in the wild. There is no error path: malformed input
// yields an empty or wrong token and downstream matching simply never hits.
func ExtractBoundary(contentType string) string {
	i := strings.Index(contentType, "boundary=")
	if i == -1 {
		return ""
	}
	tok := contentType[i+len("boundary="):]
	if j := strings.IndexByte(tok, ';'); j != -1 {
		tok = tok[:j]
	} else if j := strings.IndexByte(tok, '\r'); j != -1 {
		tok = tok[:j]
	}
	tok = strings.ReplaceAll(tok, "\"", "")
	tok = strings.TrimPrefix(tok, "--")
	return tok
}
