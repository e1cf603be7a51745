package server

import (
	"net"
	"time"

	"github.com/adverify/adverify-server/auditmetrics"
)

// tcpKeepAliveListener mirrors the keep-alive behavior of
// http.Server.ListenAndServe for listeners we open ourselves.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln *tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

type monitorableListener struct {
	net.Listener
	metrics auditmetrics.MetricsEngine
}

type monitorableConnection struct {
	net.Conn
	metrics auditmetrics.MetricsEngine
}

func (ln *monitorableListener) Accept() (net.Conn, error) {
	tc, err := ln.Listener.Accept()
	if err != nil {
		ln.metrics.RecordConnectionAccept(false)
		return tc, err
	}
	ln.metrics.RecordConnectionAccept(true)
	return &monitorableConnection{
		tc,
		ln.metrics,
	}, nil
}

func (l *monitorableConnection) Close() error {
	err := l.Conn.Close()
	l.metrics.RecordConnectionClose(err == nil)
	return err
}
