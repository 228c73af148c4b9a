package visualiser

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/newslab-data/fuseviz/internal/fusion"
	"github.com/newslab-data/fuseviz/internal/monitoring"
)

// Publisher broadcasts fused frames to connected renderer clients. Each
// client gets a small bounded queue; a slow client has frames dropped for it
// rather than stalling the pipeline. No acknowledgment is expected from the
// renderer.
type Publisher struct {
	upgrader websocket.Upgrader
	clients  map[string]*clientStream
	mu       sync.RWMutex

	frameCount    atomic.Uint64
	droppedFrames atomic.Uint64
	clientCount   atomic.Int32

	lastStatsMu    sync.Mutex
	lastStatsTime  time.Time
	lastFrameCount uint64
}

// clientStream is one connected renderer.
type clientStream struct {
	id      string
	frameCh chan *WireFrame
	doneCh  chan struct{}
}

// NewPublisher creates an empty Publisher. Register Handler on an HTTP mux
// and feed frames with Publish.
func NewPublisher() *Publisher {
	return &Publisher{
		upgrader: websocket.Upgrader{
			// The renderer may be served from a different origin during a
			// demo; frame data is not sensitive.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*clientStream),
	}
}

// Handler upgrades an HTTP request to a WebSocket frame stream.
func (p *Publisher) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[Visualiser] upgrade failed: %v", err)
		return
	}

	client := &clientStream{
		id:      uuid.NewString(),
		frameCh: make(chan *WireFrame, 10),
		doneCh:  make(chan struct{}),
	}
	p.addClient(client)
	defer p.removeClient(client.id)
	defer conn.Close()

	// Drain reads so close/ping control frames are processed; the renderer
	// sends nothing else.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(client.doneCh)
				return
			}
		}
	}()

	for {
		select {
		case <-client.doneCh:
			return
		case frame := <-client.frameCh:
			if err := conn.WriteJSON(frame); err != nil {
				monitoring.Logf("[Visualiser] write to %s failed: %v", client.id, err)
				return
			}
		}
	}
}

// Publish fans a fused frame out to every connected client. Clients whose
// queue is full miss this frame; the next one supersedes it.
func (p *Publisher) Publish(frame *fusion.FusedFrame) {
	wire := ToWire(frame)

	p.mu.RLock()
	for _, client := range p.clients {
		select {
		case client.frameCh <- wire:
		default:
			p.droppedFrames.Add(1)
		}
	}
	p.mu.RUnlock()

	count := p.frameCount.Add(1)
	p.logPeriodicStats(count, len(frame.Points), len(frame.Detections))
}

// Serve consumes the dispatcher's frame channel until it closes, publishing
// each frame and then invoking any per-frame hooks (the fusion log, for
// example). Hooks run on the consumer goroutine and should not block.
func (p *Publisher) Serve(frames <-chan *fusion.FusedFrame, hooks ...func(*fusion.FusedFrame)) {
	for frame := range frames {
		p.Publish(frame)
		for _, hook := range hooks {
			hook(frame)
		}
	}
}

// Stats returns the publisher's counters.
func (p *Publisher) Stats() (frames, dropped uint64, clients int32) {
	return p.frameCount.Load(), p.droppedFrames.Load(), p.clientCount.Load()
}

func (p *Publisher) addClient(c *clientStream) {
	p.mu.Lock()
	p.clients[c.id] = c
	p.mu.Unlock()
	n := p.clientCount.Add(1)
	monitoring.Logf("[Visualiser] client connected: %s (total: %d)", c.id, n)
}

func (p *Publisher) removeClient(id string) {
	p.mu.Lock()
	delete(p.clients, id)
	p.mu.Unlock()
	n := p.clientCount.Add(-1)
	monitoring.Logf("[Visualiser] client disconnected: %s (remaining: %d)", id, n)
}

// logPeriodicStats logs throughput every 5 seconds rather than per frame.
func (p *Publisher) logPeriodicStats(frameCount uint64, pointCount, boxCount int) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}

	elapsed := now.Sub(p.lastStatsTime)
	if elapsed < 5*time.Second {
		return
	}
	fps := float64(frameCount-p.lastFrameCount) / elapsed.Seconds()
	monitoring.Logf("[Visualiser] stats: fps=%.1f dropped=%d clients=%d last_frame: points=%d boxes=%d",
		fps, p.droppedFrames.Load(), p.clientCount.Load(), pointCount, boxCount)
	p.lastStatsTime = now
	p.lastFrameCount = frameCount
}
