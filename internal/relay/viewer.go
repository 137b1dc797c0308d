package relay

import (
	"net/http"
	"sync"
)

// viewer is one downstream connection. Everything except gone is owned by the
// session goroutine; the handler goroutine only parks on gone and the request
// context while a session is feeding the viewer.
type viewer struct {
	w      http.ResponseWriter
	flush  http.Flusher
	remote string
	fresh  bool // true until the first boundary-aligned write; managed by audience

	gone     chan struct{} // closed when the session is finished with this viewer
	goneOnce sync.Once
}

func newViewer(w http.ResponseWriter, r *http.Request) *viewer {
	v := &viewer{w: w, remote: r.RemoteAddr, gone: make(chan struct{})}
	if f, ok := w.(http.Flusher); ok {
		v.flush = f
	}
	return v
}

// finish releases the handler goroutine. Safe to call more than once; a viewer
// can be finished by the fan-out loop and by its own detach in close succession.
func (v *viewer) finish() {
	v.goneOnce.Do(func() { close(v.gone) })
}

func (v *viewer) write(b []byte) error {
	if _, err := v.w.Write(b); err != nil {
		return err
	}
	if v.flush != nil {
		v.flush.Flush()
	}
	return nil
}
