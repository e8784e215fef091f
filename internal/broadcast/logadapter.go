package broadcast

import "log"

// serverLogAdapter satisfies nats-server's Logger interface so the embedded
// server's diagnostics flow through the same *log.Logger the rest of
// Laminark uses, instead of going straight to stderr.
type serverLogAdapter struct {
	l *log.Logger
}

func newServerLogAdapter(l *log.Logger) *serverLogAdapter {
	return &serverLogAdapter{l: l}
}

func (a *serverLogAdapter) Noticef(format string, v ...any) { a.l.Printf("[nats] "+format, v...) }
func (a *serverLogAdapter) Warnf(format string, v ...any)   { a.l.Printf("[nats] "+format, v...) }
func (a *serverLogAdapter) Fatalf(format string, v ...any)  { a.l.Printf("[nats] "+format, v...) }
func (a *serverLogAdapter) Errorf(format string, v ...any)  { a.l.Printf("[nats] "+format, v...) }
func (a *serverLogAdapter) Debugf(format string, v ...any)  { a.l.Printf("[nats] "+format, v...) }
func (a *serverLogAdapter) Tracef(format string, v ...any)  { a.l.Printf("[nats] "+format, v...) }
