// Package relay implements the MJPEG stream multiplexer: one lazily opened
// upstream connection per source, fanned out frame-aligned to any number of
// downstream viewers.
package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"camrelay/internal/httpx"
	"camrelay/internal/mjpeg"
	"camrelay/internal/obs"
	"camrelay/internal/proto"
)

// Reporter receives status transitions for dashboards and external publishing.
// Implementations must be cheap; calls happen on the session goroutine.
type Reporter interface {
	SessionState(source, state string)
	Viewers(source string, n int)
	Bytes(source string, n int)
}

// Options configures a Proxy. Only Source is required.
type Options struct {
	Name     string       // label used in logs, metrics and status documents
	Source   string       // upstream MJPEG URL
	Client   *http.Client // defaults to a fresh client with no overall timeout
	Reporter Reporter

	// Connect retry knobs; zero values take the package defaults.
	ConnectRetryDelay  time.Duration
	MaxConnectAttempts int
	ReadBufferSize     int
}

// Proxy relays one upstream MJPEG stream. The upstream connection exists only
// while at least one viewer is attached; it is opened by the first viewer and
// torn down when the last one leaves or the stream ends.
type Proxy struct {
	name               string
	source             string
	client             *http.Client
	rep                Reporter
	connectRetryDelay  time.Duration
	maxConnectAttempts int
	readBufferSize     int

	mu   sync.Mutex
	sess *session // nil while idle
}

func New(opts Options) (*Proxy, error) {
	if opts.Source == "" {
		return nil, errors.New("relay: source URL is required")
	}
	p := &Proxy{
		name:               opts.Name,
		source:             opts.Source,
		client:             opts.Client,
		rep:                opts.Reporter,
		connectRetryDelay:  opts.ConnectRetryDelay,
		maxConnectAttempts: opts.MaxConnectAttempts,
		readBufferSize:     opts.ReadBufferSize,
	}
	if p.name == "" {
		p.name = "stream"
	}
	if p.client == nil {
		// Streaming reads never finish; an overall client timeout would kill
		// healthy sessions.
		p.client = &http.Client{}
	}
	if p.connectRetryDelay <= 0 {
		p.connectRetryDelay = defaultConnectRetryDelay
	}
	if p.maxConnectAttempts <= 0 {
		p.maxConnectAttempts = defaultMaxConnectAttempts
	}
	if p.readBufferSize <= 0 {
		p.readBufferSize = defaultReadBufferSize
	}
	return p, nil
}

// Name returns the label the proxy was configured with.
func (p *Proxy) Name() string { return p.name }

// session carries the channels tying one upstream connection lifetime to the
// goroutine that owns all registry and distribution state.
type session struct {
	attach chan *viewer
	detach chan *viewer
	events chan upstreamEvent
	done   chan struct{} // closed when the run loop has exited
	cancel context.CancelFunc
}

func (s *session) post(ctx context.Context, ev upstreamEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Handle attaches the downstream connection as a viewer; any request means
// "attach a viewer". It blocks until the session finishes the viewer or the
// client goes away, so the ResponseWriter stays valid for the session
// goroutine the whole time.
func (p *Proxy) Handle(w http.ResponseWriter, r *http.Request) {
	v := newViewer(w, r)
	var s *session
	for {
		s = p.acquireSession()
		select {
		case s.attach <- v:
		case <-s.done:
			continue // session died while we were joining; start over
		}
		break
	}
	select {
	case <-v.gone:
	case <-r.Context().Done():
		select {
		case s.detach <- v:
			<-v.gone // wait for the ack so no write races the handler return
		case <-s.done:
		}
	}
}

// acquireSession returns the active session, replacing one that has already
// exited, or starts a fresh one (Idle → Connecting).
func (p *Proxy) acquireSession() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil {
		select {
		case <-p.sess.done:
			p.sess = nil
		default:
			return p.sess
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		attach: make(chan *viewer),
		detach: make(chan *viewer),
		events: make(chan upstreamEvent, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	p.sess = s
	obs.SessionsStartedTotal.Inc()
	obs.UpstreamSessions.Inc()
	obs.Info("session.connecting", obs.Fields{"source": p.name})
	p.reportState(proto.StateConnecting)
	go p.runSession(s)
	go p.readUpstream(ctx, s)
	return s
}

// runSession is the single logical thread of a session: every registry
// mutation, repair step and viewer write happens here, in upstream order.
func (p *Proxy) runSession(s *session) {
	start := time.Now()
	var (
		aud      audience
		repair   *mjpeg.Repairer
		marker   []byte
		boundary string
	)
	streaming := false

	defer func() {
		p.mu.Lock()
		if p.sess == s {
			p.sess = nil
		}
		p.mu.Unlock()
		s.cancel()
		close(s.done)
		obs.UpstreamSessions.Dec()
		obs.ActiveViewers.WithLabelValues(p.name).Set(0)
		obs.SessionDurationSeconds.Observe(time.Since(start).Seconds())
		p.reportViewers(0)
		p.reportState(proto.StateIdle)
	}()

	closeAll := func() {
		for _, v := range aud.all() {
			v.finish()
		}
	}

	for {
		select {
		case v := <-s.attach:
			aud.attach(v)
			if streaming {
				httpx.PrimeStream(v.w, boundary)
			}
			obs.ActiveViewers.WithLabelValues(p.name).Set(float64(aud.size()))
			p.reportViewers(aud.size())
			obs.Debug("viewer.attach", obs.Fields{"source": p.name, "remote": v.remote, "viewers": aud.size()})

		case v := <-s.detach:
			empty := aud.detach(v)
			v.finish()
			obs.ActiveViewers.WithLabelValues(p.name).Set(float64(aud.size()))
			p.reportViewers(aud.size())
			obs.Debug("viewer.detach", obs.Fields{"source": p.name, "remote": v.remote, "viewers": aud.size()})
			if empty {
				// No reason to keep pulling upstream bandwidth for nobody.
				obs.Info("session.idle", obs.Fields{"source": p.name})
				return
			}

		case ev := <-s.events:
			switch ev.kind {
			case evConnected:
				boundary = ev.boundary
				marker = []byte("--" + boundary)
				repair = mjpeg.NewRepairer(boundary)
				streaming = true
				for _, v := range aud.all() {
					httpx.PrimeStream(v.w, boundary)
				}
				obs.Info("session.streaming", obs.Fields{"source": p.name, "boundary": boundary, "viewers": aud.size()})
				p.reportState(proto.StateStreaming)

			case evChunk:
				out := repair.Apply(ev.chunk)
				var dead []*viewer
				for _, v := range aud.all() {
					if aud.isNew(v) {
						i := bytes.Index(out, marker)
						if i == -1 {
							continue // hold until a chunk carries the marker
						}
						if err := v.write(out[i:]); err != nil {
							dead = append(dead, v)
							continue
						}
						aud.markDelivered(v)
					} else if err := v.write(out); err != nil {
						dead = append(dead, v)
					}
				}
				obs.ChunksRelayedTotal.Inc()
				obs.BytesRelayedTotal.WithLabelValues(p.name).Add(float64(len(out)))
				p.reportBytes(len(out))
				if len(dead) > 0 {
					empty := false
					for _, v := range dead {
						empty = aud.detach(v)
						v.finish()
					}
					obs.ActiveViewers.WithLabelValues(p.name).Set(float64(aud.size()))
					p.reportViewers(aud.size())
					if empty {
						obs.Info("session.idle", obs.Fields{"source": p.name})
						return
					}
				}

			case evEnded:
				obs.Info("session.ended", obs.Fields{"source": p.name, "viewers": aud.size()})
				closeAll()
				return

			case evFailed:
				obs.ConnectFailuresTotal.Inc()
				obs.ErrorsTotal.WithLabelValues("connect_exhausted").Inc()
				obs.Error("session.failed", obs.Fields{"source": p.name, "err": errString(ev.err), "viewers": aud.size()})
				closeAll()
				return

			case evDropped:
				// Mid-stream drop: abandon the session without touching the
				// attached viewers. Their sockets stay open and orphaned until
				// they disconnect themselves; the next attach after that gets
				// a fresh session. Connect retry does not apply here.
				obs.ErrorsTotal.WithLabelValues("upstream_drop").Inc()
				obs.Error("session.dropped", obs.Fields{"source": p.name, "err": errString(ev.err), "orphaned": aud.size()})
				return
			}
		}
	}
}

func (p *Proxy) reportState(state string) {
	if p.rep != nil {
		p.rep.SessionState(p.name, state)
	}
}

func (p *Proxy) reportViewers(n int) {
	if p.rep != nil {
		p.rep.Viewers(p.name, n)
	}
}

func (p *Proxy) reportBytes(n int) {
	if p.rep != nil {
		p.rep.Bytes(p.name, n)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
