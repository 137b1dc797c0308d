package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const testBoundary = "bd"

// frame is a well formed part as an upstream would emit it mid-stream, CRLF
// before the marker included, so fan-out tests exercise alignment rather than
// repair.
var frame = []byte("\r\n--bd\r\nContent-Type: image/jpeg\r\n\r\nFRAMEONE")

// fakeUpstream is a scriptable MJPEG source: every chunk pushed into chunks is
// written and flushed; closing chunks ends the stream cleanly; a cancelled
// request signals gone.
type fakeUpstream struct {
	mu       sync.Mutex
	requests int
	chunks   chan []byte
	gone     chan struct{}
	srv      *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	u := &fakeUpstream{chunks: make(chan []byte, 16), gone: make(chan struct{}, 16)}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests++
		u.mu.Unlock()
		w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+testBoundary)
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for {
			select {
			case c, ok := <-u.chunks:
				if !ok {
					return
				}
				_, _ = w.Write(c)
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				u.gone <- struct{}{}
				return
			}
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *fakeUpstream) requestCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

// attachViewer issues a downstream GET and returns once the relay has primed
// the response, i.e. the viewer is attached to a streaming session.
func attachViewer(t *testing.T, frontURL string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, frontURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("viewer connect: %v", err)
	}
	return resp, cancel
}

func mustRead(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("viewer read: %v", err)
	}
	return buf
}

func TestViewersShareSingleUpstreamSession(t *testing.T) {
	up := newFakeUpstream(t)
	p, err := New(Options{Name: "cam", Source: up.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	respA, cancelA := attachViewer(t, front.URL)
	defer cancelA()
	defer respA.Body.Close()
	if ct := respA.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace;boundary=bd" {
		t.Errorf("viewer Content-Type = %q", ct)
	}

	up.chunks <- append([]byte(nil), frame...)
	if got := mustRead(t, respA.Body, len(frame)-2); string(got) != string(frame[2:]) {
		t.Errorf("viewer A first bytes = %q, want aligned %q", got, frame[2:])
	}

	respB, cancelB := attachViewer(t, front.URL)
	defer cancelB()
	defer respB.Body.Close()

	second := []byte("TAILBYTES\r\n--bd\r\nContent-Type: image/jpeg\r\n\r\nFRAMETWO")
	up.chunks <- append([]byte(nil), second...)
	// B is new: its stream must begin exactly at the marker.
	if got := mustRead(t, respB.Body, len(second)-11); string(got) != string(second[11:]) {
		t.Errorf("viewer B first bytes = %q, want %q", got, second[11:])
	}
	// A is aligned already and receives the chunk verbatim.
	if got := mustRead(t, respA.Body, len(second)); string(got) != string(second) {
		t.Errorf("viewer A second chunk = %q, want %q", got, second)
	}

	if n := up.requestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1 shared session", n)
	}
}

func TestNewViewerHeldUntilBoundary(t *testing.T) {
	up := newFakeUpstream(t)
	p, err := New(Options{Name: "cam", Source: up.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	resp, cancel := attachViewer(t, front.URL)
	defer cancel()
	defer resp.Body.Close()

	up.chunks <- []byte("JPEGDATAWITHOUTANYMARKER")
	up.chunks <- append([]byte(nil), frame...)
	// The marker-free chunk must not reach a viewer that is still new.
	if got := mustRead(t, resp.Body, len(frame)-2); string(got) != string(frame[2:]) {
		t.Errorf("first received bytes = %q, want %q", got, frame[2:])
	}
}

func TestRepairInsertedIntoRelayedStream(t *testing.T) {
	up := newFakeUpstream(t)
	p, err := New(Options{Name: "cam", Source: up.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	resp, cancel := attachViewer(t, front.URL)
	defer cancel()
	defer resp.Body.Close()

	up.chunks <- append([]byte(nil), frame...)
	mustRead(t, resp.Body, len(frame)-2)

	// Encoder quirk: marker with no preceding CRLF. The relayed copy must
	// have one spliced in.
	up.chunks <- []byte("FRAMEDATA--bd\r\n\r\nNEXT")
	want := "FRAMEDATA\r\n--bd\r\n\r\nNEXT"
	if got := mustRead(t, resp.Body, len(want)); string(got) != want {
		t.Errorf("relayed chunk = %q, want repaired %q", got, want)
	}
}

func TestLastViewerDisconnectTearsDownUpstream(t *testing.T) {
	up := newFakeUpstream(t)
	p, err := New(Options{Name: "cam", Source: up.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	respA, cancelA := attachViewer(t, front.URL)
	up.chunks <- append([]byte(nil), frame...)
	mustRead(t, respA.Body, len(frame)-2)

	cancelA()
	respA.Body.Close()
	select {
	case <-up.gone:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream session not torn down after last viewer left")
	}

	// The next viewer gets a fresh session.
	respB, cancelB := attachViewer(t, front.URL)
	defer cancelB()
	defer respB.Body.Close()
	up.chunks <- append([]byte(nil), frame...)
	mustRead(t, respB.Body, len(frame)-2)
	if n := up.requestCount(); n != 2 {
		t.Errorf("upstream requests = %d, want 2", n)
	}
}

func TestUpstreamEndClosesViewers(t *testing.T) {
	up := newFakeUpstream(t)
	p, err := New(Options{Name: "cam", Source: up.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	resp, cancel := attachViewer(t, front.URL)
	defer cancel()
	defer resp.Body.Close()

	up.chunks <- append([]byte(nil), frame...)
	mustRead(t, resp.Body, len(frame)-2)

	close(up.chunks)
	rest, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("viewer should see a clean close, got %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("unexpected trailing bytes after upstream end: %q", rest)
	}
	if n := up.requestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}
}

// scriptedTransport fails the first failures round trips, then delegates.
type scriptedTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
	next     http.RoundTripper
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n <= s.failures || s.next == nil {
		return nil, errors.New("simulated connect failure")
	}
	return s.next.RoundTrip(req)
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestConnectRetryBudgetExhausted(t *testing.T) {
	rt := &scriptedTransport{failures: 99}
	p, err := New(Options{
		Name:               "cam",
		Source:             "http://upstream.invalid/stream",
		Client:             &http.Client{Transport: rt},
		ConnectRetryDelay:  time.Millisecond,
		MaxConnectAttempts: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	resp, err := http.Get(front.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected the connection to simply end with no body, got %q", body)
	}
	if n := rt.callCount(); n != 4 {
		t.Errorf("connect attempts = %d, want 4", n)
	}
}

func TestConnectRetrySucceedsWithinBudget(t *testing.T) {
	up := newFakeUpstream(t)
	rt := &scriptedTransport{failures: 3, next: http.DefaultTransport}
	p, err := New(Options{
		Name:               "cam",
		Source:             up.srv.URL,
		Client:             &http.Client{Transport: rt},
		ConnectRetryDelay:  time.Millisecond,
		MaxConnectAttempts: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	resp, cancel := attachViewer(t, front.URL)
	defer cancel()
	defer resp.Body.Close()
	up.chunks <- append([]byte(nil), frame...)
	if got := mustRead(t, resp.Body, len(frame)-2); string(got) != string(frame[2:]) {
		t.Errorf("viewer bytes = %q, want %q", got, frame[2:])
	}
	if n := rt.callCount(); n != 4 {
		t.Errorf("connect attempts = %d, want 4 (3 failures then success)", n)
	}
	if n := up.requestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}
}

func TestMidStreamDropStartsFreshSessionLater(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary=bd")
		if n == 1 {
			// Promise more bytes than will be sent so the relay observes a
			// broken stream instead of a clean EOF.
			w.Header().Set("Content-Length", "1048576")
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write(frame)
		w.(http.Flusher).Flush()
		if n == 1 {
			return
		}
		<-r.Context().Done()
	}))
	defer upstream.Close()

	p, err := New(Options{Name: "cam", Source: upstream.URL})
	if err != nil {
		t.Fatal(err)
	}
	front := httptest.NewServer(http.HandlerFunc(p.Handle))
	defer front.Close()

	respA, cancelA := attachViewer(t, front.URL)
	defer cancelA()
	defer respA.Body.Close()
	mustRead(t, respA.Body, len(frame)-2)

	// Give the relay time to observe the drop; no reconnect happens on its
	// own while only orphaned viewers remain.
	time.Sleep(200 * time.Millisecond)

	respB, cancelB := attachViewer(t, front.URL)
	defer cancelB()
	defer respB.Body.Close()
	mustRead(t, respB.Body, len(frame)-2)

	mu.Lock()
	n := requests
	mu.Unlock()
	if n != 2 {
		t.Errorf("upstream requests = %d, want 2 (fresh session after drop)", n)
	}
}

func TestMissingSourceIsConstructionError(t *testing.T) {
	if _, err := New(Options{Name: "cam"}); err == nil {
		t.Fatal("expected an error constructing a proxy without a source URL")
	}
}
