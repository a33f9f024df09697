// Package engine ties the window, the GPU context and the pipeline registry
// together and runs the event loop.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/bsrt/bsrt/element"
	"github.com/bsrt/bsrt/gpu"
	"github.com/bsrt/bsrt/pipeline"
	"github.com/bsrt/bsrt/window"
	"github.com/cockroachdb/errors"
)

type Engine struct {
	log      *slog.Logger
	cfg      Config
	window   *window.Window
	context  *gpu.Context
	registry *pipeline.Registry
	elements element.List
	loop     *Loop
	closed   bool
}

// New opens the window, then the GPU context, then the registry. Errors from
// the GPU context are returned unchanged so callers can match its stages.
func New(cfg Config) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	log, err := InitLogging(cfg.Log.Dir, time.Now())
	if err != nil && !errors.Is(err, ErrLoggingInitialised) {
		if log == nil {
			return nil, err
		}
		log.Warn("file logging unavailable", "err", err)
	}

	e := &Engine{log: log, cfg: cfg, loop: NewLoop(log)}

	e.window, err = window.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return nil, err
	}

	e.context, err = gpu.New(log, e.window, gpu.Options{
		ApplicationName:  cfg.Window.Title,
		Validation:       cfg.GPU.Validation,
		DeviceExtensions: cfg.GPU.DeviceExtensions,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	e.registry, err = pipeline.New(log, e.context)
	if err != nil {
		e.Close()
		return nil, err
	}

	log.Info("engine ready", "adapter", e.context.AdapterName(), "pipelines", e.registry.Len())
	return e, nil
}

func (e *Engine) Log() *slog.Logger { return e.log }

func (e *Engine) Context() *gpu.Context { return e.context }

func (e *Engine) Registry() *pipeline.Registry { return e.registry }

func (e *Engine) Window() *window.Window { return e.window }

// AddElement appends el; elements are never removed or reordered.
func (e *Engine) AddElement(el element.Element) {
	e.elements.Add(el)
}

// Elements returns a copy of the elements in insertion order.
func (e *Engine) Elements() []element.Element {
	return e.elements.All()
}

// DispatchTest runs the built-in shader with the configured size and output.
func (e *Engine) DispatchTest(ctx context.Context) error {
	d := e.cfg.Dispatch
	return e.registry.DispatchTest(ctx, d.Width, d.Height, d.Output)
}

// Run pumps window events until the window is closed.
func (e *Engine) Run() {
	e.loop.Run(e.window)
}

// Close tears down the registry, the GPU context and the window, in that order.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	if e.registry != nil {
		e.registry.Close()
	}
	if e.context != nil {
		e.context.Close()
	}
	if e.window != nil {
		e.window.Destroy()
	}
}
