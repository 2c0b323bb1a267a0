package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/util"
)

type EventCallback func(event *Event)

type StateCallback func(state WebSocketState)

type callbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// EventStream subscribes to the analysis websocket of a rating server and
// fans incoming events out to registered callbacks.
type EventStream struct {
	wsURL                string
	conn                 *websocket.Conn
	connMu               sync.Mutex
	state                WebSocketState
	stateMu              sync.RWMutex
	eventCallbacks       []callbackEntry
	stateCallbacks       []stateCallbackEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int // guarded by stateMu
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	listenerWg           sync.WaitGroup
}

func NewEventStream(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *EventStream {
	return &EventStream{
		wsURL:                wsURL,
		state:                WSStateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		logger:               logger,
		stopCh:               make(chan struct{}),
		eventCallbacks:       make([]callbackEntry, 0),
		stateCallbacks:       make([]stateCallbackEntry, 0),
		nextCallbackID:       1,
	}
}

// WebSocketURL derives the ws:// endpoint from an http(s) API base.
func WebSocketURL(apiBase string) string {
	u := strings.TrimRight(apiBase, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (es *EventStream) Connect(ctx context.Context) error {
	es.stateMu.Lock()
	if es.state == WSStateConnected || es.state == WSStateConnecting {
		es.stateMu.Unlock()
		es.logger.Warn("Event stream already connected or connecting")
		return nil
	}
	es.stateMu.Unlock()

	es.setState(WSStateConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = constants.WebSocketConfig.HandshakeTimeout

	conn, _, err := dialer.DialContext(ctx, es.wsURL, nil)
	if err != nil {
		es.logger.Error("Failed to connect event stream", zap.Error(err))
		es.setState(WSStateFailed)
		es.scheduleReconnect(ctx)
		return err
	}
	conn.SetReadLimit(constants.WebSocketConfig.ReadLimit)

	es.connMu.Lock()
	es.conn = conn
	es.connMu.Unlock()
	es.resetReconnectAttempts()
	es.setState(WSStateConnected)

	es.logger.Info("Event stream connected", zap.String("url", es.wsURL))

	es.listenerWg.Add(1)
	go es.listen(ctx, conn)

	return nil
}

// Send writes a control message such as get_status or ping.
func (es *EventStream) Send(eventType string) error {
	es.connMu.Lock()
	defer es.connMu.Unlock()
	if es.conn == nil {
		return websocket.ErrCloseSent
	}
	if err := es.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout)); err != nil {
		return err
	}
	return es.conn.WriteJSON(Event{Type: eventType})
}

func (es *EventStream) listen(ctx context.Context, conn *websocket.Conn) {
	defer es.listenerWg.Done()
	defer es.logger.Debug("Event stream listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-es.stopCh:
			return
		default:
		}

		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-es.stopCh:
				return
			default:
			}
			es.logger.Warn("Event stream read error", zap.Error(err))
			es.setState(WSStateDisconnected)
			es.scheduleReconnect(ctx)
			return
		}

		es.handleMessage(msgBytes)
	}
}

func (es *EventStream) handleMessage(data []byte) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		es.logger.Error("Failed to parse event",
			zap.Error(err),
			zap.String("data", util.TruncateString(string(data), 200)),
		)
		return
	}

	es.callbacksMu.RLock()
	callbacks := make([]callbackEntry, len(es.eventCallbacks))
	copy(callbacks, es.eventCallbacks)
	es.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(&event)
	}
}

func (es *EventStream) scheduleReconnect(ctx context.Context) {
	es.stateMu.Lock()
	es.reconnectAttempts++
	attempt := es.reconnectAttempts
	es.stateMu.Unlock()

	if attempt > es.maxReconnectAttempts {
		es.logger.Error("Max reconnect attempts reached",
			zap.Int("attempts", attempt),
		)
		es.setState(WSStateFailed)
		return
	}

	es.setState(WSStateReconnecting)

	es.logger.Info("Scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Int("max", es.maxReconnectAttempts),
		zap.Duration("delay", es.reconnectDelay),
	)

	go func() {
		select {
		case <-time.After(es.reconnectDelay):
			if err := es.Connect(ctx); err != nil {
				es.logger.Error("Reconnect failed", zap.Error(err))
			}
		case <-es.stopCh:
		case <-ctx.Done():
		}
	}()
}

// OnEvent registers a callback and returns its unsubscribe function.
func (es *EventStream) OnEvent(callback EventCallback) func() {
	es.callbacksMu.Lock()
	id := es.nextCallbackID
	es.nextCallbackID++
	es.eventCallbacks = append(es.eventCallbacks, callbackEntry{
		id:       id,
		callback: callback,
	})
	es.callbacksMu.Unlock()

	return func() {
		es.callbacksMu.Lock()
		defer es.callbacksMu.Unlock()
		for i, entry := range es.eventCallbacks {
			if entry.id == id {
				es.eventCallbacks = append(es.eventCallbacks[:i], es.eventCallbacks[i+1:]...)
				break
			}
		}
	}
}

// OnStateChange registers a connection state callback and returns its
// unsubscribe function.
func (es *EventStream) OnStateChange(callback StateCallback) func() {
	es.callbacksMu.Lock()
	id := es.nextCallbackID
	es.nextCallbackID++
	es.stateCallbacks = append(es.stateCallbacks, stateCallbackEntry{
		id:       id,
		callback: callback,
	})
	es.callbacksMu.Unlock()

	return func() {
		es.callbacksMu.Lock()
		defer es.callbacksMu.Unlock()
		for i, entry := range es.stateCallbacks {
			if entry.id == id {
				es.stateCallbacks = append(es.stateCallbacks[:i], es.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (es *EventStream) resetReconnectAttempts() {
	es.stateMu.Lock()
	es.reconnectAttempts = 0
	es.stateMu.Unlock()
}

// ReconnectAttempts reports how many reconnects ran since the last successful
// connection.
func (es *EventStream) ReconnectAttempts() int {
	es.stateMu.RLock()
	defer es.stateMu.RUnlock()
	return es.reconnectAttempts
}

func (es *EventStream) setState(newState WebSocketState) {
	es.stateMu.Lock()
	oldState := es.state
	es.state = newState
	es.stateMu.Unlock()

	if oldState == newState {
		return
	}
	es.logger.Debug("Event stream state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	es.callbacksMu.RLock()
	callbacks := make([]stateCallbackEntry, len(es.stateCallbacks))
	copy(callbacks, es.stateCallbacks)
	es.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (es *EventStream) GetState() WebSocketState {
	es.stateMu.RLock()
	defer es.stateMu.RUnlock()
	return es.state
}

func (es *EventStream) IsConnected() bool {
	return es.GetState() == WSStateConnected
}

func (es *EventStream) Disconnect() error {
	es.stopOnce.Do(func() {
		close(es.stopCh)
	})

	es.connMu.Lock()
	conn := es.conn
	es.conn = nil
	es.connMu.Unlock()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}

	es.resetReconnectAttempts()
	es.setState(WSStateDisconnected)

	done := make(chan struct{})
	go func() {
		es.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		es.logger.Warn("Timeout waiting for event listener to stop")
	}

	return closeErr
}
