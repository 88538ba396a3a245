package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"castboard/internal/observability"
)

// StreamConfig configures EventStream connection behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Event is a change notification emitted by the registry contract.
type Event struct {
	Name        string // UserAdded, UserUpdated, UserRemoved, or empty if unknown
	Address     string // participant address from the first indexed topic, lowercase
	BlockNumber uint64
	TxHash      string
	Removed     bool // log was dropped by a reorg
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       rpcLog `json:"result"`
	} `json:"params"`
}

type rpcLog struct {
	Topics          []common.Hash  `json:"topics"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
	Removed         bool           `json:"removed"`
}

// EventStream subscribes to contract logs over a websocket endpoint and
// reconnects with exponential backoff until its context is canceled.
type EventStream struct {
	endpoint string
	contract common.Address
	config   StreamConfig
	names    map[common.Hash]string
	logger   zerolog.Logger
}

// NewEventStream creates a stream of registry events from endpoint.
func NewEventStream(endpoint string, contract common.Address, config *StreamConfig, logger zerolog.Logger) (*EventStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	parsed, err := abi.JSON(strings.NewReader(CastBoardABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	names := make(map[common.Hash]string, len(parsed.Events))
	for _, ev := range parsed.Events {
		names[ev.ID] = ev.Name
	}

	return &EventStream{
		endpoint: endpoint,
		contract: contract,
		config:   cfg,
		names:    names,
		logger:   logger,
	}, nil
}

// Run delivers events to out until ctx is canceled. It always returns ctx.Err().
func (s *EventStream) Run(ctx context.Context, out chan<- Event) error {
	delay := s.config.ReconnectDelay

	for {
		delivered, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			delay = s.config.ReconnectDelay
		}

		s.logger.Warn().Err(err).Dur("backoff", delay).Msg("ledger event stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// session runs one connection. delivered reports whether any event was read.
func (s *EventStream) session(ctx context.Context, out chan<- Event) (delivered bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	subID, err := s.subscribe(conn)
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("subscription", subID).Str("contract", s.contract.Hex()).Msg("subscribed to ledger events")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, conn, done)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}

		var msg rpcMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("ignoring undecodable ledger message")
			continue
		}
		if msg.Method != "eth_subscription" || msg.Params == nil || msg.Params.Subscription != subID {
			continue
		}

		ev := s.toEvent(msg.Params.Result)
		observability.RecordLedgerEvent()
		delivered = true

		select {
		case out <- ev:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

// subscribe sends eth_subscribe and waits for the subscription ID.
func (s *EventStream) subscribe(conn *websocket.Conn) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params: []interface{}{
			"logs",
			map[string]interface{}{"address": s.contract.Hex()},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return "", fmt.Errorf("read subscribe response: %w", err)
		}
		if msg.ID == nil || *msg.ID != req.ID {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("subscribe rejected: %d %s", msg.Error.Code, msg.Error.Message)
		}

		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil || subID == "" {
			return "", fmt.Errorf("subscribe: unexpected result %s", string(msg.Result))
		}
		return subID, nil
	}
}

func (s *EventStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			// Unblocks the pending read in session.
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) toEvent(l rpcLog) Event {
	ev := Event{
		BlockNumber: uint64(l.BlockNumber),
		TxHash:      l.TransactionHash.Hex(),
		Removed:     l.Removed,
	}
	if len(l.Topics) > 0 {
		ev.Name = s.names[l.Topics[0]]
	}
	if len(l.Topics) > 1 {
		ev.Address = strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex())
	}
	return ev
}
