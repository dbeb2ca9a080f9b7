package frame

import (
	"context"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/domain"
	"srrt/internal/metrics"
)

// DefaultDecryptTimeout bounds the lease request made for one frame.
const DefaultDecryptTimeout = 10 * time.Second

// Pipeline classifies the frames of one session and hands accepted events
// to a sink.
type Pipeline struct {
	ConnID    domain.ConnID
	Graph     domain.Graph
	Decryptor *Decryptor
	Sink      func(domain.Event)
	Timeout   time.Duration

	Log     *logging.Logger
	Metrics *metrics.Metrics

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *Pipeline) init() {
	p.once.Do(func() {
		p.ctx, p.cancel = context.WithCancel(context.Background())
		if p.Timeout <= 0 {
			p.Timeout = DefaultDecryptTimeout
		}
	})
}

// Handle processes one raw frame. It never fails: rejected frames are
// dropped and logged at debug level.
func (p *Pipeline) Handle(raw []byte) {
	p.init()
	if p.ctx.Err() != nil {
		return
	}

	f, err := Parse(raw)
	if err != nil {
		p.drop(metrics.FrameMalformed, "%v", err)
		return
	}
	if IsSelfEcho(f, p.ConnID) {
		p.drop(metrics.FrameEcho, "self echo")
		return
	}
	if !AcceptsGraph(f, p.Graph) {
		p.drop(metrics.FrameGraph, "graph %q", f.Graph())
		return
	}

	if env := f.Envelope(); IsChat(env) {
		p.deliver(chatEvent(f, env))
		return
	}

	ev := Normalize(f)
	if ev.Kind == domain.KindControl {
		p.drop(metrics.FrameControl, "control %s", ev.Type)
		return
	}
	if p.Decryptor != nil && (ev.Kind == domain.KindCapsule || ev.Kind == domain.KindVoiceFrame) {
		ctx, cancel := context.WithTimeout(p.ctx, p.Timeout)
		err := p.Decryptor.Decrypt(ctx, &ev)
		cancel()
		if err != nil {
			ev.DecryptErr = err
			p.Metrics.DecryptFailure()
			if p.Log != nil {
				p.Log.Warningf("decrypt %s %s: %v", ev.Type, ev.ID, err)
			}
		}
	}
	p.deliver(ev)
}

func (p *Pipeline) deliver(ev domain.Event) {
	// Close may have run while a lease request was in flight.
	if p.ctx.Err() != nil {
		return
	}
	p.Metrics.Frame(metrics.FrameDelivered)
	if p.Sink != nil {
		p.Sink(ev)
	}
}

func (p *Pipeline) drop(result, format string, args ...any) {
	p.Metrics.Frame(result)
	if p.Log != nil {
		p.Log.Debugf("drop frame: "+format, args...)
	}
}

// Close stops delivery and aborts in-flight lease requests.
func (p *Pipeline) Close() {
	p.init()
	p.cancel()
}
