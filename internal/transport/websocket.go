package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/napd/console/helpers"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
	"github.com/temoto/alive/v2"
)

type transportWebsocket struct {
	log       *log2.Log
	h         Handler
	url       string
	timeout   time.Duration
	keepalive time.Duration
	dialer    *websocket.Dialer
	alive     *alive.Alive

	mu      sync.Mutex
	gen     uint64
	pending uint64 // gen of dial in progress
	conn    *websocket.Conn
}

func (self *transportWebsocket) Init(ctx context.Context, log *log2.Log, cfg config.Transport, consoleID string, h Handler) error {
	if cfg.URL == "" {
		return errors.NotValidf("websocket url empty")
	}
	self.log = log
	self.h = h
	self.url = cfg.URL
	self.timeout = cfg.NetworkTimeout()
	self.keepalive = cfg.Keepalive()
	self.dialer = &websocket.Dialer{HandshakeTimeout: self.timeout}
	self.alive = alive.NewAlive()
	return nil
}

// Connect is no-op while dial of current generation is in progress. Handshake
// may take up to network timeout which is longer than caller retry period.
func (self *transportWebsocket) Connect() {
	self.mu.Lock()
	if self.pending != 0 && self.pending == self.gen {
		self.mu.Unlock()
		self.log.Debugf("websocket dial already pending url=%s", self.url)
		return
	}
	self.gen++
	self.pending = self.gen
	gen := self.gen
	self.closeConn()
	self.mu.Unlock()

	if !self.alive.Add(1) {
		self.dialDone(gen)
		return
	}
	go self.dial(gen)
}

func (self *transportWebsocket) Disconnect() {
	helpers.WithLock(&self.mu, func() {
		self.gen++
		self.closeConn()
	})
}

func (self *transportWebsocket) Close() {
	self.Disconnect()
	self.alive.Stop()
	self.alive.Wait()
}

func (self *transportWebsocket) Send(payload []byte) error {
	return helpers.WithLockError(&self.mu, func() error {
		if self.conn == nil {
			return protocol.ErrNotConnected
		}
		_ = self.conn.SetWriteDeadline(time.Now().Add(self.timeout))
		if err := self.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return errors.Annotate(err, "websocket write")
		}
		return nil
	})
}

func (self *transportWebsocket) current(gen uint64) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.gen == gen
}

func (self *transportWebsocket) dialDone(gen uint64) {
	helpers.WithLock(&self.mu, func() {
		if self.pending == gen {
			self.pending = 0
		}
	})
}

// closeConn requires mu held.
func (self *transportWebsocket) closeConn() {
	if self.conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = self.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	self.conn.Close()
	self.conn = nil
}

func (self *transportWebsocket) dial(gen uint64) {
	defer self.alive.Done()

	ctx, cancel := context.WithTimeout(context.Background(), self.timeout)
	defer cancel()
	conn, _, err := self.dialer.DialContext(ctx, self.url, nil)
	if err != nil {
		self.dialDone(gen)
		if self.current(gen) {
			self.h.OnConnectError(errors.Annotatef(err, "websocket dial url=%s", self.url))
		}
		return
	}

	self.mu.Lock()
	if self.pending == gen {
		self.pending = 0
	}
	if self.gen != gen || !self.alive.IsRunning() {
		self.mu.Unlock()
		conn.Close()
		return
	}
	self.conn = conn
	self.mu.Unlock()

	self.log.Debugf("websocket connected url=%s", self.url)
	self.h.OnConnect()

	if !self.alive.Add(1) {
		return
	}
	go self.pinger(conn, gen)
	self.reader(conn, gen)
}

func (self *transportWebsocket) reader(conn *websocket.Conn, gen uint64) {
	readTimeout := self.keepalive * 2
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		kind, b, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if !self.current(gen) {
				return
			}
			self.mu.Lock()
			if self.conn == conn {
				self.conn = nil
			}
			self.mu.Unlock()
			self.h.OnDisconnect(errors.Annotate(err, "websocket read"))
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		switch kind {
		case websocket.TextMessage, websocket.BinaryMessage:
			self.h.OnMessage(b)
		}
	}
}

func (self *transportWebsocket) pinger(conn *websocket.Conn, gen uint64) {
	defer self.alive.Done()
	tick := time.NewTicker(self.keepalive)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if !self.current(gen) {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(self.timeout)); err != nil {
				self.log.Debugf("websocket ping err=%v", err)
				return
			}
		case <-self.alive.StopChan():
			return
		}
	}
}
