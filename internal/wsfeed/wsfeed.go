// Package wsfeed implements the websocket adapter (spec component A4): a
// thin reader that decodes one JSON frame at a time into an
// actions.Action. It carries no reconnection or backoff logic — the
// caller constructs a fresh Source after a disconnect, and the session
// controller's run_id check (spec §4.7) absorbs the resulting restart.
package wsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/tildenfx/marketstate/internal/actions"
)

// Source yields decoded actions from a live feed until the connection
// closes or ctx is canceled.
type Source interface {
	Next(ctx context.Context) (actions.Action, error)
	Close() error
}

// GorillaSource reads one JSON text frame at a time off a
// gorilla/websocket connection and classifies it via actions.Decode.
type GorillaSource struct {
	conn *websocket.Conn
}

// Dial opens a websocket connection to base, appending the exchange's
// token query parameter exactly as original_source/ledgerx's
// gen_websocket_url does (?token=<api_key>).
func Dial(ctx context.Context, base, apiKey string) (*GorillaSource, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("wsfeed: invalid websocket base %q: %w", base, err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("token", apiKey)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, fmt.Errorf("wsfeed: dial %s: %w", u.Redacted(), err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	return &GorillaSource{conn: conn}, nil
}

// Next blocks for the next text frame and decodes it. Decode errors for
// a malformed frame are returned to the caller rather than swallowed;
// the connection stays open. cmd/marketstated's feed loop does not tell
// them apart from read errors: it logs either one, closes the Source and
// redials.
func (s *GorillaSource) Next(ctx context.Context) (actions.Action, error) {
	type result struct {
		action actions.Action
		err    error
	}
	done := make(chan result, 1)
	go func() {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			done <- result{err: fmt.Errorf("wsfeed: read: %w", err)}
			return
		}
		a, err := actions.Decode(raw)
		done <- result{action: a, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = s.conn.Close()
		return actions.Action{}, ctx.Err()
	case r := <-done:
		return r.action, r.err
	}
}

// Close closes the underlying connection.
func (s *GorillaSource) Close() error {
	return s.conn.Close()
}

var _ Source = (*GorillaSource)(nil)
