package pipeline

import (
	"context"
	"log/slog"

	"github.com/bsrt/bsrt/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

// Device is the part of the GPU context the registry builds on.
type Device interface {
	CreateComputePipeline(name string, code []uint32, entryPoint string, bindings []gpu.Binding) (gpu.Pipeline, error)
	CreateStorageImage(width, height int) (gpu.Image, error)
	AllocateDescriptorSet(p gpu.Pipeline, slot int, img gpu.Image) (gpu.DescriptorSet, error)
	CreateReadbackBuffer(size int) (gpu.Buffer, error)
	Submit(cmds ...gpu.Command) (gpu.Fence, error)
	Limits() gpu.Limits
}

var _ Device = (*gpu.Context)(nil)

// Compiler turns WGSL source into SPIR-V bytes.
type Compiler func(source string) ([]byte, error)

type Option func(*Registry)

// WithCompiler replaces the naga WGSL compiler.
func WithCompiler(compile Compiler) Option {
	return func(r *Registry) { r.compile = compile }
}

// Registry owns the compute pipelines; dispatches refer to them by index.
type Registry struct {
	log       *slog.Logger
	dev       Device
	compile   Compiler
	pipelines []gpu.Pipeline
	closed    bool
}

// New creates a registry with TestProgram at index 0.
func New(log *slog.Logger, dev Device, opts ...Option) (*Registry, error) {
	r := &Registry{
		log:     log.With("component", "pipeline"),
		dev:     dev,
		compile: naga.Compile,
	}
	for _, opt := range opts {
		opt(r)
	}

	_, err := r.Register(TestProgram())
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Register compiles prog, builds its pipeline and returns its index.
func (r *Registry) Register(prog Program) (int, error) {
	if r.closed {
		return -1, ErrClosed
	}
	if prog.EntryPoint == "" {
		prog.EntryPoint = "main"
	}

	spirv, err := r.compile(prog.Source)
	if err != nil {
		return -1, mark(ErrShaderCompile, err, "compile %s", prog.Name)
	}
	code, err := bytesToBytecode(spirv)
	if err != nil {
		return -1, errors.Wrapf(err, "compile %s", prog.Name)
	}

	bindings, err := Reflect(prog.Source, prog.EntryPoint)
	if err != nil {
		return -1, errors.Wrapf(err, "reflect %s", prog.Name)
	}

	p, err := r.dev.CreateComputePipeline(prog.Name, code, prog.EntryPoint, bindings)
	if err != nil {
		return -1, mark(ErrPipelineCreation, err, "build %s", prog.Name)
	}

	r.pipelines = append(r.pipelines, p)
	idx := len(r.pipelines) - 1
	r.log.Info("pipeline registered", "name", prog.Name, "index", idx, "bindings", len(bindings), "words", len(code))
	return idx, nil
}

func (r *Registry) Len() int { return len(r.pipelines) }

// Pipeline returns the pipeline at idx.
func (r *Registry) Pipeline(idx int) (gpu.Pipeline, error) {
	if idx < 0 || idx >= len(r.pipelines) {
		return nil, errors.Wrapf(ErrUnknownPipeline, "index %d of %d", idx, len(r.pipelines))
	}
	return r.pipelines[idx], nil
}

// Close releases pipelines in reverse registration order.
func (r *Registry) Close() {
	if r.closed {
		return
	}
	r.closed = true

	for i := len(r.pipelines) - 1; i >= 0; i-- {
		r.pipelines[i].Release()
	}
	r.pipelines = nil
}

// DispatchTest runs the built-in shader once over a width x height image and
// writes it to output.
func (r *Registry) DispatchTest(ctx context.Context, width, height int, output string) error {
	return r.DispatchAndSave(ctx, DispatchRequest{
		Pipeline:   0,
		Width:      width,
		Height:     height,
		Workgroups: [3]int{width, height, 1},
		Output:     output,
	})
}
