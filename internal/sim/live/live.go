// Package live drives a simulation engine on a wall-clock ticker and
// fans each step out to subscribed viewers as JSON frames.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"wealthgrid.dev/internal/protocol"
	"wealthgrid.dev/internal/sim/engine"
)

type subscribeReq struct {
	out  chan []byte
	resp chan protocol.WelcomeMsg
}

// Loop owns the engine. All engine access happens on the Run goroutine;
// viewers only ever see marshaled frames.
type Loop struct {
	eng   *engine.Engine
	runID string
	hz    int
	log   *log.Logger

	subscribe   chan subscribeReq
	unsubscribe chan chan []byte
	stop        chan struct{}
}

func NewLoop(e *engine.Engine, runID string, tickRateHz int, logger *log.Logger) *Loop {
	if tickRateHz <= 0 {
		tickRateHz = 10
	}
	return &Loop{
		eng:         e,
		runID:       runID,
		hz:          tickRateHz,
		log:         logger,
		subscribe:   make(chan subscribeReq),
		unsubscribe: make(chan chan []byte),
		stop:        make(chan struct{}),
	}
}

// Subscribe registers a viewer and returns its outbound frame channel
// plus the WELCOME message describing the run. The channel is small on
// purpose; slow viewers get the latest frame, not a backlog.
func (l *Loop) Subscribe() (chan []byte, protocol.WelcomeMsg) {
	req := subscribeReq{out: make(chan []byte, 8), resp: make(chan protocol.WelcomeMsg, 1)}
	l.subscribe <- req
	return req.out, <-req.resp
}

func (l *Loop) Unsubscribe(out chan []byte) {
	select {
	case l.unsubscribe <- out:
	case <-l.stop:
	}
}

func (l *Loop) Stop() { close(l.stop) }

func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	viewers := make(map[chan []byte]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case req := <-l.subscribe:
			viewers[req.out] = struct{}{}
			req.resp <- l.welcome()
		case out := <-l.unsubscribe:
			delete(viewers, out)
		case <-ticker.C:
			if !l.eng.Running() {
				continue
			}
			l.eng.Step()
			if len(viewers) == 0 {
				continue
			}
			b, err := json.Marshal(BuildFrame(l.eng))
			if err != nil {
				l.log.Printf("frame marshal: %v", err)
				continue
			}
			for out := range viewers {
				sendLatest(out, b)
			}
		}
	}
}

func (l *Loop) welcome() protocol.WelcomeMsg {
	cfg := l.eng.Config()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		RunID:           l.runID,
		Params: protocol.RunParams{
			Population: cfg.Population,
			Width:      cfg.Width,
			Height:     cfg.Height,
			Seed:       cfg.Seed,
			TickRateHz: l.hz,
		},
	}
}

// BuildFrame snapshots the engine into a renderable frame. Color and
// size encode wealth relative to the current maximum so broke agents
// read as grey dots and rich ones as large warm markers.
func BuildFrame(e *engine.Engine) protocol.FrameMsg {
	agents := e.Agents()
	maxWealth := 0
	for _, a := range agents {
		if a.Wealth > maxWealth {
			maxWealth = a.Wealth
		}
	}

	views := make([]protocol.AgentView, len(agents))
	for i, a := range agents {
		views[i] = protocol.AgentView{
			ID:     a.ID,
			Wealth: a.Wealth,
			X:      a.X,
			Y:      a.Y,
			Color:  wealthColor(a.Wealth, maxWealth),
			Size:   wealthSize(a.Wealth, maxWealth),
		}
	}

	g := e.Gini()
	if math.IsNaN(g) {
		g = 0
	}
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Step:            e.CurrentStep(),
		Gini:            g,
		Agents:          views,
	}
}

// wealthColor interpolates grey to amber as wealth approaches the
// current maximum. Zero wealth is always grey.
func wealthColor(w, max int) string {
	if w <= 0 || max <= 0 {
		return "#808080"
	}
	t := float64(w) / float64(max)
	r := 128 + int(t*(230-128))
	g := 128 + int(t*(160-128))
	b := 128 - int(t*128)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func wealthSize(w, max int) float64 {
	if max <= 0 {
		return 0.5
	}
	return 0.5 + float64(w)/float64(max)
}

// sendLatest delivers b without ever blocking the tick loop. If the
// viewer's buffer is full, the oldest frame is dropped to make room.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
