package engine

import (
	"log/slog"

	"github.com/bsrt/bsrt/window"
)

// ControlFlow tells the loop whether to keep pumping events.
type ControlFlow int

const (
	Continue ControlFlow = iota
	Exit
)

func (c ControlFlow) String() string {
	if c == Exit {
		return "exit"
	}
	return "continue"
}

// EventSource delivers window events, blocking until one is available.
type EventSource interface {
	WaitEvent() window.Event
}

// Loop pumps events until a close request arrives.
type Loop struct {
	log     *slog.Logger
	control ControlFlow
	handled int
}

func NewLoop(log *slog.Logger) *Loop {
	return &Loop{log: log}
}

func (l *Loop) ControlFlow() ControlFlow { return l.control }

// Handle processes one event and reports whether the loop should continue.
// Once the loop has exited, further events are ignored.
func (l *Loop) Handle(event window.Event) bool {
	if l.control == Exit {
		return false
	}
	l.handled++

	if event == window.EventCloseRequested {
		l.control = Exit
		l.log.Info("close requested, leaving event loop", "events", l.handled)
		return false
	}
	return true
}

// Run blocks until a close request has been handled. It returns at once if
// the loop has already exited, without taking an event from src.
func (l *Loop) Run(src EventSource) {
	if l.control == Exit {
		return
	}
	for l.Handle(src.WaitEvent()) {
	}
}
