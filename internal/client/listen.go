package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sinchita-code/quickchat/internal/events"
	"go.uber.org/zap"
)

// Listen opens the push socket and feeds every event into the engine until
// ctx ends or the server goes away. A rejected token resets the engine and
// returns ErrUnauthorized; the caller must log in again before retrying.
func Listen(ctx context.Context, baseURL, token string, engine *Engine, logger *zap.Logger) error {
	wsURL, err := socketURL(baseURL, token)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			engine.Reset()
			return ErrUnauthorized
		}
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read websocket: %w", err)
		}

		env, err := events.Decode(frame)
		if err != nil {
			logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if err := engine.HandleEvent(ctx, env); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			logger.Warn("failed to apply event", zap.String("event", env.Event), zap.Error(err))
		}
	}
}

func socketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/v1/ws")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
