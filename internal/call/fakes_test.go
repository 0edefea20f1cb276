package call

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/signaling"
)

type emitted struct {
	event   string
	payload any
}

type fakeSignaler struct {
	mu         sync.Mutex
	handlers   map[string]signaling.Handler
	emits      []emitted
	registered bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{handlers: make(map[string]signaling.Handler), registered: true}
}

func (s *fakeSignaler) Emit(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emits = append(s.emits, emitted{event: event, payload: payload})
}

func (s *fakeSignaler) On(event string, h signaling.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

func (s *fakeSignaler) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *fakeSignaler) setRegistered(v bool) {
	s.mu.Lock()
	s.registered = v
	s.mu.Unlock()
}

func (s *fakeSignaler) deliver(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		data = raw
	}
	s.mu.Lock()
	h := s.handlers[event]
	s.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func (s *fakeSignaler) sent(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (s *fakeSignaler) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.emits))
	for i, e := range s.emits {
		out[i] = e.event
	}
	return out
}

type closeLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *closeLog) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *closeLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakePipeline struct {
	name string
	log  *closeLog
}

func (p *fakePipeline) Close() error {
	p.log.add(p.name)
	return nil
}

type fakeVideo struct {
	fakePipeline
	mu        sync.Mutex
	facing    media.Facing
	switchErr error
}

func (v *fakeVideo) Facing() media.Facing {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.facing
}

func (v *fakeVideo) SwitchCamera() (media.Facing, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.switchErr != nil {
		return v.facing, v.switchErr
	}
	v.facing = v.facing.Opposite()
	return v.facing, nil
}

type fakePlayback struct {
	fakePipeline
	mu     sync.Mutex
	chunks [][]byte
}

func (p *fakePlayback) Enqueue(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, pcm)
	return nil
}

func (p *fakePlayback) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

type fakeDevices struct {
	mu           sync.Mutex
	log          closeLog
	audioErr     error
	videoErr     error
	playbackErr  error
	opened       []string
	events       chan<- media.Event
	video        *fakeVideo
	playback     *fakePlayback
	ctxs         []context.Context
	playbackGate chan struct{} // holds OpenPlayback until closed
}

func (d *fakeDevices) OpenAudioCapture(ctx context.Context, events chan<- media.Event) (media.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, "audio")
	d.ctxs = append(d.ctxs, ctx)
	if d.audioErr != nil {
		return nil, d.audioErr
	}
	d.events = events
	return &fakePipeline{name: "audio", log: &d.log}, nil
}

func (d *fakeDevices) OpenVideoCapture(_ context.Context, facing media.Facing, _ chan<- media.Event) (media.VideoCapture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, "video")
	if d.videoErr != nil {
		return nil, d.videoErr
	}
	d.video = &fakeVideo{fakePipeline: fakePipeline{name: "video", log: &d.log}, facing: facing}
	return d.video, nil
}

func (d *fakeDevices) OpenPlayback(context.Context) (media.Playback, error) {
	d.mu.Lock()
	d.opened = append(d.opened, "playback")
	gate := d.playbackGate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playbackErr != nil {
		return nil, d.playbackErr
	}
	d.playback = &fakePlayback{fakePipeline: fakePipeline{name: "playback", log: &d.log}}
	return d.playback, nil
}

func (d *fakeDevices) openedList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

func (d *fakeDevices) captureEvents() chan<- media.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

func (d *fakeDevices) buildContexts() []context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]context.Context(nil), d.ctxs...)
}

func (d *fakeDevices) currentPlayback() *fakePlayback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playback
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	frames   map[string]int
}

func (r *fakeRecorder) CallFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) FrameRelayed(direction string, kind media.Kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frames == nil {
		r.frames = make(map[string]int)
	}
	r.frames[direction+"/"+string(kind)+"/"+result]++
}

func (r *fakeRecorder) outcomeList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func (r *fakeRecorder) frameCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[key]
}
