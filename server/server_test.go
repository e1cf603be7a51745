package server

import (
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/config"
)

func TestNewAdminServer(t *testing.T) {
	cfg := &config.Configuration{
		Host:      "adverify.example.com",
		AdminPort: 6060,
		Port:      8000,
	}
	server := newAdminServer(cfg, http.HandlerFunc(handler))
	if server.Addr != "adverify.example.com:6060" {
		t.Errorf("Admin server address should be %s. Got %s", "adverify.example.com:6060", server.Addr)
	}
}

func TestNewMainServer(t *testing.T) {
	cfg := &config.Configuration{
		Host:      "adverify.example.com",
		AdminPort: 6060,
		Port:      8000,
	}
	server := newMainServer(cfg, http.HandlerFunc(handler))
	if server.Addr != "adverify.example.com:8000" {
		t.Errorf("Main server address should be %s. Got %s", "adverify.example.com:8000", server.Addr)
	}
}

func TestServerShutdown(t *testing.T) {
	server := &http.Server{}
	ln := &mockListener{}

	stopper := make(chan os.Signal)
	done := make(chan struct{})
	go shutdownAfterSignals(server, stopper, done)
	go server.Serve(ln)

	stopper <- os.Interrupt
	<-done

	// If the test didn't hang, then we know server.Shutdown really _did_ return, and shutdownAfterSignals
	// passed the message along as expected.
}

func TestWait(t *testing.T) {
	inbound := make(chan os.Signal)
	chan1 := make(chan os.Signal)
	chan2 := make(chan os.Signal)
	chan3 := make(chan os.Signal)
	done := make(chan struct{})

	go forwardSignal(t, done, chan1)
	go forwardSignal(t, done, chan2)
	go forwardSignal(t, done, chan3)

	go func(chan os.Signal) {
		inbound <- os.Interrupt
	}(inbound)

	wait(inbound, done, chan1, chan2, chan3)
	// If this doesn't hang, then wait() is sending and receiving messages as expected.
}

func TestMonitorableListenerRecordsConnections(t *testing.T) {
	metrics := &auditmetrics.MetricsEngineMock{}
	metrics.On("RecordConnectionAccept", true).Once()
	metrics.On("RecordConnectionClose", true).Once()

	ln := &monitorableListener{&mockListener{}, metrics}
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Unexpected accept error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	metrics.AssertExpectations(t)
}

func TestMonitorableListenerRecordsAcceptErrors(t *testing.T) {
	metrics := &auditmetrics.MetricsEngineMock{}
	metrics.On("RecordConnectionAccept", false).Once()
	metrics.On("RecordConnectionClose", mock.Anything).Maybe()

	ln := &monitorableListener{&mockListener{acceptErr: errors.New("listener closed")}, metrics}
	if _, err := ln.Accept(); err == nil {
		t.Error("Accept should have returned the listener error")
	}

	metrics.AssertExpectations(t)
}

func handler(w http.ResponseWriter, req *http.Request) {
}

// forwardSignal is basically a working mock for shutdownAfterSignals().
// It is used to test wait() effectively
func forwardSignal(t *testing.T, outbound chan<- struct{}, inbound <-chan os.Signal) {
	var s struct{}
	sig := <-inbound
	if sig != os.Interrupt {
		t.Errorf("Unexpected signal: %s\n", sig.String())
	}
	outbound <- s
}

// mockListener hands out one piped connection and then blocks until closed,
// so http.Server.Serve does not spin.
type mockListener struct {
	acceptErr error

	init   sync.Once
	done   chan struct{}
	served bool
}

func (l *mockListener) Accept() (net.Conn, error) {
	l.init.Do(func() { l.done = make(chan struct{}) })
	if l.acceptErr != nil {
		return nil, l.acceptErr
	}
	if !l.served {
		l.served = true
		server, client := net.Pipe()
		go client.Close()
		return server, nil
	}
	<-l.done
	return nil, errors.New("use of closed network connection")
}

func (l *mockListener) Close() error {
	l.init.Do(func() { l.done = make(chan struct{}) })
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *mockListener) Addr() net.Addr {
	return &net.TCPAddr{}
}
