package window

import (
	"github.com/veandco/go-sdl2/sdl"
)

// Event is what the run loop needs to know about one SDL event.
type Event int

const (
	EventNone Event = iota
	EventCloseRequested
	EventOther
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventCloseRequested:
		return "close-requested"
	}
	return "other"
}

// Translate maps an SDL event to an Event. A quit or a window close both
// count as a close request.
func Translate(event sdl.Event) Event {
	switch e := event.(type) {
	case nil:
		return EventNone
	case *sdl.QuitEvent:
		return EventCloseRequested
	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_CLOSE {
			return EventCloseRequested
		}
	}
	return EventOther
}

// WaitEvent blocks until SDL delivers the next event.
func (w *Window) WaitEvent() Event {
	return Translate(sdl.WaitEvent())
}

// PostClose queues a close request. SDL accepts pushes from any goroutine.
func (w *Window) PostClose() error {
	_, err := sdl.PushEvent(&sdl.QuitEvent{Type: sdl.QUIT, Timestamp: sdl.GetTicks()})
	return err
}
