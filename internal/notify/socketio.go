package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the socket.io event every notification is emitted as.
const EventName = "pipegrid:event"

// connectTimeout bounds the initial connection handshake.
const connectTimeout = 15 * time.Second

// SocketIOOptions configure DialSocketIO.
type SocketIOOptions struct {
	URL                string `mapstructure:"url"`
	Namespace          string `mapstructure:"namespace"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// SocketIONotifier emits events to a socket.io server.
type SocketIONotifier struct {
	client *socket.Socket
}

// DialSocketIO connects to a socket.io server and waits for the handshake.
func DialSocketIO(ctx context.Context, o SocketIOOptions) (*SocketIONotifier, error) {
	logger := ctxlog.FromContext(ctx).With("notifier", "socketio", "url", o.URL)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io URL %q needs a scheme and host", o.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 2)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Info("📡 Notifier connected.", "sid", io.Id())
		return &SocketIONotifier{client: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Notify implements Notifier. Emitting is asynchronous; events sent while
// the connection is down are buffered by the client.
func (n *SocketIONotifier) Notify(ctx context.Context, ev Event) {
	if !n.client.Connected() {
		ctxlog.FromContext(ctx).Debug("Notifier disconnected, event buffered.", "kind", ev.Kind)
	}
	n.client.Emit(EventName, ev)
}

// Close disconnects from the server.
func (n *SocketIONotifier) Close() error {
	n.client.Disconnect()
	return nil
}
