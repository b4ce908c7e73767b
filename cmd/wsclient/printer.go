package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rickgao/socket-client/internal/connection"
)

// printer writes connection events and messages to out, one per line.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

// attach registers print listeners on c and its default router.
func (p *printer) attach(c *connection.Conn) {
	c.OnConnect(func(ev connection.ConnectEvent) {
		if ev.Protocol != "" {
			p.printf("* connected %s (protocol %s)", ev.Address, ev.Protocol)
			return
		}
		p.printf("* connected %s", ev.Address)
	})
	c.OnError(func(err error) {
		p.printf("! %v", err)
	})
	c.OnClose(func(ev connection.CloseEvent) {
		p.printf("* closed %d %s", ev.Code, ev.Reason)
	})

	r := c.DefaultRouter()
	r.OnText(func(s string) {
		p.printf("< %s", s)
	})
	r.OnStructured(func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			p.printf("< %v", v)
			return
		}
		p.printf("< json %s", b)
	})
	r.OnBinary(func(b []byte) {
		p.printf("< binary %d bytes %x", len(b), b)
	})
}
