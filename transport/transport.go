// File: transport/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transport is the engine: it owns the response registry, the
// handshaker, the keep-alive scheduler and the action handler table,
// and ties channel lifecycle to pending-request cleanup.

package transport

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/breaker"
	"github.com/momentics/nodewire/config"
	"github.com/momentics/nodewire/exec"
	"github.com/momentics/nodewire/version"
)

// MessageListener observes message lifecycle events. Callbacks run on
// transport goroutines and must not block.
type MessageListener interface {
	OnRequestSent(requestID int64, action string)
	OnResponseSent(requestID int64, action string, err error)
	OnRequestReceived(requestID int64, action string)
	OnResponseReceived(requestID int64, action string)
}

// Stats is a point-in-time snapshot of transport counters.
type Stats struct {
	BytesRead       int64
	BytesWritten    int64
	MessagesRead    int64
	MessagesWritten int64
	PingsSent       int64
	PingsReceived   int64

	AcceptedChannels    int
	PendingRequests     int
	PendingHandshakes   int
	CompletedHandshakes int64
}

// Config assembles a Transport. Factory is required; everything else
// has a usable default.
type Config struct {
	Settings config.Settings
	Version  version.Policy
	Factory  api.ChannelFactory

	// Breaker accounts inbound request memory. Defaults to an in-flight
	// breaker limited to Settings.MaxInboundBytes.
	Breaker api.MemoryBreaker

	// Executor runs handlers and response callbacks. When nil the
	// transport creates and owns a worker pool.
	Executor api.Executor

	Logger *zerolog.Logger
}

// Transport implements the node-to-node wire engine.
type Transport struct {
	nodeName          string
	maxInboundBytes   int64
	compressResponses bool

	policy   version.Policy
	factory  api.ChannelFactory
	breaker  api.MemoryBreaker
	executor api.Executor
	log      zerolog.Logger

	// ownExecutor is set only when the pool was created here and must be
	// closed on Stop.
	ownExecutor *exec.Pool

	responseHandlers *ResponseHandlers
	handshaker       *handshaker
	keepAlive        *keepAlive

	handlersMu sync.RWMutex
	handlers   map[string]*HandlerRegistration

	// closeLock serializes Stop against OpenConnection so no pool can be
	// born after shutdown began.
	closeLock sync.RWMutex
	closed    atomic.Bool

	acceptedMu sync.Mutex
	accepted   map[api.Channel]struct{}

	listenersMu      sync.RWMutex
	messageListeners []MessageListener

	bytesRead       atomic.Int64
	bytesWritten    atomic.Int64
	messagesRead    atomic.Int64
	messagesWritten atomic.Int64
}

// New validates cfg and builds a stopped-free transport ready to open
// and accept connections.
func New(cfg Config) (*Transport, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("transport: channel factory is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Version.Current == 0 {
		return nil, fmt.Errorf("transport: version policy is required")
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "transport").Logger()
	}

	t := &Transport{
		nodeName:          cfg.Settings.NodeName,
		maxInboundBytes:   cfg.Settings.MaxInboundBytes,
		compressResponses: cfg.Settings.CompressResponses,
		policy:            cfg.Version,
		factory:           cfg.Factory,
		breaker:           cfg.Breaker,
		executor:          cfg.Executor,
		log:               log,
		handlers:          make(map[string]*HandlerRegistration),
		accepted:          make(map[api.Channel]struct{}),
		responseHandlers:  NewResponseHandlers(),
	}
	if t.breaker == nil {
		t.breaker = breaker.NewInFlight(cfg.Settings.MaxInboundBytes)
	}
	if t.executor == nil {
		pool := exec.NewPool(0, 0)
		t.ownExecutor = pool
		t.executor = pool
	}
	t.handshaker = newHandshaker(t)
	t.keepAlive = newKeepAlive(t)
	return t, nil
}

// NodeName returns the identity this transport stamps into outbound
// error responses.
func (t *Transport) NodeName() string { return t.nodeName }

// Version returns the transport's version policy.
func (t *Transport) Version() version.Policy { return t.policy }

// maxFrameLength caps a single inbound frame at 90% of the inbound
// memory budget so one message can never consume the whole breaker.
func (t *Transport) maxFrameLength() int32 {
	limit := t.maxInboundBytes * 9 / 10
	if limit <= 0 || limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit)
}

// ServeChannel enrolls an accepted inbound channel so that Stop can
// close it. The channel's reads must be fed to ConsumeNetworkReads by
// its adapter.
func (t *Transport) ServeChannel(ch api.Channel) error {
	t.closeLock.RLock()
	defer t.closeLock.RUnlock()
	if t.closed.Load() {
		return ErrTransportStopped
	}
	t.acceptedMu.Lock()
	t.accepted[ch] = struct{}{}
	t.acceptedMu.Unlock()
	ch.AddCloseListener(func() {
		t.acceptedMu.Lock()
		delete(t.accepted, ch)
		t.acceptedMu.Unlock()
	})
	return nil
}

// Stop shuts the transport down: no new connections, every accepted
// channel closed, every pending request failed terminally, keep-alive
// loops cancelled. Idempotent.
func (t *Transport) Stop() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	t.acceptedMu.Lock()
	accepted := make([]api.Channel, 0, len(t.accepted))
	for ch := range t.accepted {
		accepted = append(accepted, ch)
	}
	t.accepted = make(map[api.Channel]struct{})
	t.acceptedMu.Unlock()
	for _, ch := range accepted {
		ch.Close()
	}

	// Pool close listeners have already failed their own pendings by the
	// time the channels close above; this sweep catches everything else.
	stale := t.responseHandlers.RemoveAll(func(*PendingResponse) bool { return true })
	for _, p := range stale {
		t.deliverPendingError(p, ErrTransportStopped)
	}

	t.keepAlive.stop()
	if t.ownExecutor != nil {
		t.ownExecutor.Close()
	}
	t.log.Info().Msg("transport stopped")
}

// failPendingOnChannels fails every pending request whose channel is in
// members. Called from pool teardown so a disconnect resolves each
// affected request exactly once.
func (t *Transport) failPendingOnChannels(members map[api.Channel]struct{}, cause error) {
	removed := t.responseHandlers.RemoveAll(func(p *PendingResponse) bool {
		_, ok := members[p.Channel]
		return ok
	})
	for _, p := range removed {
		t.deliverPendingError(p, cause)
	}
}

func (t *Transport) deliverPendingError(p *PendingResponse, cause error) {
	err := fmt.Errorf("request [%s] pending for %s failed: %w",
		p.Action, time.Since(p.SentAt).Round(time.Millisecond), cause)
	t.deliverError(p, err)
}

// onException handles a connection-fatal error on ch: log and close.
// Closing cascades through the channel's close listeners into pool
// teardown and pending-request cleanup.
func (t *Transport) onException(ch api.Channel, err error) {
	t.log.Warn().Err(err).Str("remote", ch.RemoteAddr()).Msg("closing channel after transport error")
	ch.Close()
}

// AddMessageListener registers l for message lifecycle events.
func (t *Transport) AddMessageListener(l MessageListener) {
	t.listenersMu.Lock()
	t.messageListeners = append(t.messageListeners, l)
	t.listenersMu.Unlock()
}

// RemoveMessageListener removes a previously added listener.
func (t *Transport) RemoveMessageListener(l MessageListener) {
	t.listenersMu.Lock()
	for i, cur := range t.messageListeners {
		if cur == l {
			t.messageListeners = append(t.messageListeners[:i], t.messageListeners[i+1:]...)
			break
		}
	}
	t.listenersMu.Unlock()
}

func (t *Transport) notifyRequestSent(requestID int64, action string) {
	t.listenersMu.RLock()
	defer t.listenersMu.RUnlock()
	for _, l := range t.messageListeners {
		l.OnRequestSent(requestID, action)
	}
}

func (t *Transport) notifyResponseSent(requestID int64, action string, err error) {
	t.listenersMu.RLock()
	defer t.listenersMu.RUnlock()
	for _, l := range t.messageListeners {
		l.OnResponseSent(requestID, action, err)
	}
}

func (t *Transport) notifyRequestReceived(requestID int64, action string) {
	t.listenersMu.RLock()
	defer t.listenersMu.RUnlock()
	for _, l := range t.messageListeners {
		l.OnRequestReceived(requestID, action)
	}
}

func (t *Transport) notifyResponseReceived(requestID int64, action string) {
	t.listenersMu.RLock()
	defer t.listenersMu.RUnlock()
	for _, l := range t.messageListeners {
		l.OnResponseReceived(requestID, action)
	}
}

// Stats snapshots the transport counters.
func (t *Transport) Stats() Stats {
	t.acceptedMu.Lock()
	accepted := len(t.accepted)
	t.acceptedMu.Unlock()
	return Stats{
		AcceptedChannels:    accepted,
		BytesRead:           t.bytesRead.Load(),
		BytesWritten:        t.bytesWritten.Load(),
		MessagesRead:        t.messagesRead.Load(),
		MessagesWritten:     t.messagesWritten.Load(),
		PingsSent:           t.keepAlive.successfulPings.Load(),
		PingsReceived:       t.keepAlive.receivedPings.Load(),
		PendingRequests:     t.responseHandlers.Len(),
		PendingHandshakes:   t.handshaker.numPending(),
		CompletedHandshakes: t.handshaker.numCompleted(),
	}
}
