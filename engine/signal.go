package engine

import (
	"os"
	"os/signal"
	"syscall"
)

// Poster can queue a close request from any goroutine.
type Poster interface {
	PostClose() error
}

// WatchSignals turns SIGINT and SIGTERM into close requests on p. The
// returned stop function ends the watch.
func WatchSignals(p Poster, onError func(error)) (stop func()) {
	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-signals:
				if err := p.PostClose(); err != nil && onError != nil {
					onError(err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
