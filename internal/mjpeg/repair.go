package mjpeg

import "bytes"

var crlf = []byte{'\r', '\n'}

// Repairer fixes a known encoder quirk: boundary markers emitted without the
// preceding CRLF that multipart framing requires. It carries the final two
// bytes of the previous output chunk so a marker at the start of a chunk can
// be judged against bytes that arrived in the chunk before it.
//
// Only the first marker occurrence per chunk is inspected; observed streams
// carry at most one marker transition per read. A marker at offset exactly 1
// is passed through unrepaired (not enough in-chunk context).
type Repairer struct {
	marker []byte
	prev   [2]byte
}

func NewRepairer(boundary string) *Repairer {
	return &Repairer{marker: []byte("--" + boundary)}
}

// Apply returns chunk with a CRLF spliced in before the first boundary marker
// that lacks one, or chunk unchanged. The returned slice may alias chunk.
func (r *Repairer) Apply(chunk []byte) []byte {
	out := chunk
	switch i := bytes.Index(chunk, r.marker); {
	case i == 0:
		if r.prev[0] != '\r' || r.prev[1] != '\n' {
			out = make([]byte, 0, len(chunk)+2)
			out = append(out, crlf...)
			out = append(out, chunk...)
		}
	case i > 1:
		if chunk[i-2] != '\r' || chunk[i-1] != '\n' {
			out = make([]byte, 0, len(chunk)+2)
			out = append(out, chunk[:i]...)
			out = append(out, crlf...)
			out = append(out, chunk[i:]...)
		}
	}
	switch {
	case len(out) >= 2:
		r.prev[0], r.prev[1] = out[len(out)-2], out[len(out)-1]
	case len(out) == 1:
		r.prev[0], r.prev[1] = r.prev[1], out[0]
	}
	return out
}
