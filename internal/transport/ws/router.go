package ws

import (
	"log/slog"
	"sync"
)

// Handler consumes one inbound frame.
type Handler func(Frame)

// Router fans inbound frames out to the listeners registered for their type.
// Delivery is synchronous and in registration order; a panicking listener is
// recovered so the rest still run.
type Router struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string][]Handler)}
}

func (r *Router) On(frameType string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[frameType] = append(r.handlers[frameType], h)
}

func (r *Router) Dispatch(f Frame) {
	r.mu.Lock()
	hs := make([]Handler, len(r.handlers[f.Type]))
	copy(hs, r.handlers[f.Type])
	r.mu.Unlock()

	for _, h := range hs {
		call(h, f)
	}
}

func call(h Handler, f Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("ws.router: listener panic", "type", f.Type, "panic", rec)
		}
	}()
	h(f)
}
