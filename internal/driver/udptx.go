package driver

import (
	"net"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/queue"
)

// udpTx is the async send loop of one connection. Mixers and keepalive
// timers enqueue finished packets; the task writes them in order. A write
// failure closes the queue, which surfaces to the mixer as a connection
// failure on its next send.
type udpTx struct {
	conn   net.Conn
	inbox  *queue.Queue[[]byte]
	logger *zap.Logger
}

func newUDPTx(conn net.Conn, logger *zap.Logger) *udpTx {
	t := &udpTx{conn: conn, inbox: queue.New[[]byte](), logger: logger}
	go t.run()
	return t
}

func (t *udpTx) run() {
	for {
		pkt, ok := t.inbox.Recv()
		if !ok {
			return
		}
		if _, err := t.conn.Write(pkt); err != nil {
			t.logger.Warn("Voice UDP send failed", zap.Error(err))
			t.inbox.Close()
			return
		}
	}
}

// send enqueues a packet. The slice is owned by the task after the call.
func (t *udpTx) send(pkt []byte) error {
	return t.inbox.Send(pkt)
}

func (t *udpTx) close() {
	t.inbox.Close()
	_ = t.conn.Close()
}
