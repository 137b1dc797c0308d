package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"camrelay/internal/mjpeg"
	"camrelay/internal/obs"
)

// Connect failure policy: fixed delay between attempts, hard attempt cap.
// A failure after the response is established is not a connect failure and is
// never retried here.
const (
	defaultConnectRetryDelay  = 500 * time.Millisecond
	defaultMaxConnectAttempts = 10
	defaultReadBufferSize     = 32 * 1024
)

type eventKind int

const (
	evConnected eventKind = iota // response headers arrived; boundary known
	evChunk                      // one body read
	evEnded                      // upstream closed normally (EOF)
	evDropped                    // established stream broke mid-flight
	evFailed                     // connect retry budget exhausted
)

type upstreamEvent struct {
	kind     eventKind
	boundary string
	chunk    []byte
	err      error
}

// readUpstream owns the single outbound request for one session. It reconnects
// on connect failure until the attempt budget runs out, then reports evFailed.
// Once a response is obtained the counter is never consulted again: the stream
// either ends (evEnded), breaks (evDropped), or is cancelled by the session.
func (p *Proxy) readUpstream(ctx context.Context, s *session) {
	attempts := 0
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.source, nil)
		if err != nil {
			s.post(ctx, upstreamEvent{kind: evFailed, err: err})
			return
		}
		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			obs.ConnectRetriesTotal.Inc()
			obs.Error("upstream.connect", obs.Fields{"source": p.name, "attempt": attempts, "err": err.Error()})
			if attempts >= p.maxConnectAttempts {
				s.post(ctx, upstreamEvent{kind: evFailed, err: err})
				return
			}
			select {
			case <-time.After(p.connectRetryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}
		if resp.StatusCode != http.StatusOK {
			// Relay transparently either way; the source knows best.
			obs.Info("upstream.status", obs.Fields{"source": p.name, "status": resp.StatusCode})
		}
		boundary := mjpeg.ExtractBoundary(resp.Header.Get("Content-Type"))
		s.post(ctx, upstreamEvent{kind: evConnected, boundary: boundary})

		buf := make([]byte, p.readBufferSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.post(ctx, upstreamEvent{kind: evChunk, chunk: chunk})
			}
			if err != nil {
				_ = resp.Body.Close()
				switch {
				case errors.Is(err, io.EOF):
					s.post(ctx, upstreamEvent{kind: evEnded})
				case ctx.Err() != nil:
					// Session torn down under us (audience emptied).
				default:
					s.post(ctx, upstreamEvent{kind: evDropped, err: err})
				}
				return
			}
		}
	}
}
