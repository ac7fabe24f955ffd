package relay

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSTransport struct {
	nc      *nats.Conn
	subject string
}

func DialNATS(url, name string) (*NATSTransport, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return &NATSTransport{nc: nc, subject: Subject}, nil
}

func (t *NATSTransport) Send(_ context.Context, msg []byte) error {
	return t.nc.Publish(t.subject, msg)
}

func (t *NATSTransport) Receive(ctx context.Context, fn func([]byte)) error {
	sub, err := t.nc.Subscribe(t.subject, func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if err := t.nc.Flush(); err != nil {
		return err
	}
	<-ctx.Done()

	return ctx.Err()
}

func (t *NATSTransport) Close() error {
	return t.nc.Drain()
}
