package transport

import (
	"context"

	"github.com/juju/errors"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/log2"
)

// Transport contract:
//   - Init fails only with invalid config, no network activity
//   - Connect/Disconnect return immediately, outcome is reported to Handler
//   - no automatic reconnect, retry policy belongs to the caller
//   - Send fails fast with protocol.ErrNotConnected, never queues
//   - connected Send may block caller up to network timeout (websocket write
//     deadline, mqtt publish ack)
//   - Connect while own dial is pending is no-op
//   - one Send payload is one frame/message on the wire
//   - Handler is not called for a connection closed by Disconnect
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, cfg config.Transport, consoleID string, h Handler) error
	Connect()
	Disconnect()
	Send(payload []byte) error
	Close()
}

// Handler methods are called from transport goroutines.
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnConnectError(err error)
	OnMessage(payload []byte)
}

func New(kind string) (Transporter, error) {
	switch kind {
	case config.TransportWebsocket:
		return &transportWebsocket{}, nil
	case config.TransportMqtt:
		return &transportMqtt{}, nil
	}
	return nil, errors.NotSupportedf("transport kind=%s", kind)
}
