// File: transport/connect_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/config"
	"github.com/momentics/nodewire/version"
)

// TestCountDown_SingleWinner races decrements and checks exactly one
// caller observes the zero transition.
func TestCountDown_SingleWinner(t *testing.T) {
	const N = 64
	cd := newCountDown(N)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cd.CountDown() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("%d winners, want 1", wins.Load())
	}
	if cd.CountDown() {
		t.Error("count down won after zero")
	}
}

// TestCountDown_FastForwardOneWinner lets many failures race for the
// single reporting slot.
func TestCountDown_FastForwardOneWinner(t *testing.T) {
	cd := newCountDown(10)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cd.FastForward() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("%d fast-forward winners, want 1", wins.Load())
	}
	if cd.CountDown() {
		t.Error("count down won after fast forward")
	}
}

// failAfterFactory connects channels successfully until the configured
// dial, then fails. Channels track their closed state.
type failAfterFactory struct {
	mu       sync.Mutex
	dials    int
	failOn   int
	channels []*PipeChannel
}

func (f *failAfterFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	f.mu.Lock()
	f.dials++
	n := f.dials
	f.mu.Unlock()
	if n == f.failOn {
		return nil, errors.New("dial refused")
	}
	local, _ := NewPipePair(addr)
	f.mu.Lock()
	f.channels = append(f.channels, local)
	f.mu.Unlock()
	connected(nil)
	return local, nil
}

func testPolicy() version.Policy {
	return version.Policy{Current: 12, MinCompatible: 9, HandshakeMinimum: 8}
}

func newTestTransport(t *testing.T, factory api.ChannelFactory) *Transport {
	t.Helper()
	tr, err := New(Config{
		Settings: config.DefaultSettings(),
		Version:  testPolicy(),
		Factory:  factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(tr.Stop)
	return tr
}

// TestOpenConnection_AllOrNothing fails the third of four dials and
// expects exactly one failure with every opened channel closed.
func TestOpenConnection_AllOrNothing(t *testing.T) {
	factory := &failAfterFactory{failOn: 3}
	tr := newTestTransport(t, factory)

	b := NewProfileBuilder()
	b.HandshakeTimeout = time.Second
	b.AddChannels(4, TypeRegular)
	profile, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	failures := make(chan error, 4)
	tr.OpenConnection("peer:9300", profile, func(nc *NodeChannels, err error) {
		if nc != nil {
			t.Error("got a pool despite dial failure")
		}
		failures <- err
	})

	select {
	case err := <-failures:
		var ce *ConnectError
		if !errors.As(err, &ce) {
			t.Errorf("error %v, want ConnectError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported")
	}
	select {
	case err := <-failures:
		t.Fatalf("second failure reported: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	for i, ch := range factory.channels {
		if ch.IsOpen() {
			t.Errorf("channel %d left open", i)
		}
	}
}

// deadFirstFactory hands out an already-closed channel on the first
// dial and healthy ones afterwards, so the failure fires while the dial
// loop is still opening channels.
type deadFirstFactory struct {
	mu       sync.Mutex
	dials    int
	channels []*PipeChannel
}

func (f *deadFirstFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	f.mu.Lock()
	f.dials++
	first := f.dials == 1
	f.mu.Unlock()
	local, _ := NewPipePair(addr)
	if first {
		local.Close()
	}
	f.mu.Lock()
	f.channels = append(f.channels, local)
	f.mu.Unlock()
	connected(nil)
	return local, nil
}

// TestOpenConnection_FailureMidLoopClosesLaterChannels checks channels
// dialed after the failure is detected are closed too: a failed attempt
// leaves zero channels open.
func TestOpenConnection_FailureMidLoopClosesLaterChannels(t *testing.T) {
	factory := &deadFirstFactory{}
	tr := newTestTransport(t, factory)

	b := NewProfileBuilder()
	b.HandshakeTimeout = time.Second
	b.AddChannels(4, TypeRegular)
	profile, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	failures := make(chan error, 4)
	tr.OpenConnection("peer:9300", profile, func(nc *NodeChannels, err error) {
		if nc != nil {
			t.Error("got a pool despite a dead channel")
		}
		failures <- err
	})

	select {
	case err := <-failures:
		var ce *ConnectError
		if !errors.As(err, &ce) {
			t.Errorf("error %v, want ConnectError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported")
	}
	if len(factory.channels) != 4 {
		t.Fatalf("factory dialed %d channels, want 4", len(factory.channels))
	}
	for i, ch := range factory.channels {
		if ch.IsOpen() {
			t.Errorf("channel %d left open after failed connect", i+1)
		}
	}
}

// deafFactory connects channels whose peers never answer.
type deafFactory struct{}

func (deafFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	local, _ := NewPipePair(addr)
	connected(nil)
	return local, nil
}

// TestOpenConnection_HandshakeTimeout fails the attempt when the peer
// never answers the negotiation.
func TestOpenConnection_HandshakeTimeout(t *testing.T) {
	tr := newTestTransport(t, deafFactory{})

	b := NewProfileBuilder()
	b.HandshakeTimeout = 50 * time.Millisecond
	b.AddChannels(1, TypeRegular)
	profile, _ := b.Build()

	got := make(chan error, 1)
	tr.OpenConnection("peer:9300", profile, func(nc *NodeChannels, err error) {
		got <- err
	})
	select {
	case err := <-got:
		if !errors.Is(err, ErrHandshakeTimeout) {
			t.Errorf("error %v, want handshake timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported")
	}
}

// neverConnectedFactory returns channels whose connect callback never
// fires.
type neverConnectedFactory struct{}

func (neverConnectedFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	local, _ := NewPipePair(addr)
	return local, nil
}

// TestOpenConnection_ConnectTimeout fails when channels never report
// connected.
func TestOpenConnection_ConnectTimeout(t *testing.T) {
	tr := newTestTransport(t, neverConnectedFactory{})

	b := NewProfileBuilder()
	b.ConnectTimeout = 50 * time.Millisecond
	b.HandshakeTimeout = time.Second
	b.AddChannels(2, TypeRegular)
	profile, _ := b.Build()

	got := make(chan error, 1)
	tr.OpenConnection("peer:9300", profile, func(nc *NodeChannels, err error) {
		got <- err
	})
	select {
	case err := <-got:
		if !errors.Is(err, ErrConnectTimeout) {
			t.Errorf("error %v, want connect timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported")
	}
}

// TestOpenConnection_AfterStop is rejected outright.
func TestOpenConnection_AfterStop(t *testing.T) {
	tr := newTestTransport(t, deafFactory{})
	tr.Stop()

	b := NewProfileBuilder()
	b.HandshakeTimeout = time.Second
	b.AddChannels(1, TypeRegular)
	profile, _ := b.Build()

	got := make(chan error, 1)
	tr.OpenConnection("peer:9300", profile, func(nc *NodeChannels, err error) {
		got <- err
	})
	select {
	case err := <-got:
		if !errors.Is(err, ErrTransportStopped) {
			t.Errorf("error %v, want ErrTransportStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no result reported")
	}
}
