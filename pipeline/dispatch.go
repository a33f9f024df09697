package pipeline

import (
	"context"
	"image"

	"github.com/bsrt/bsrt/gpu"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
)

// DispatchRequest describes one synchronous compute dispatch.
type DispatchRequest struct {
	Pipeline      int
	Width, Height int
	Workgroups    [3]int
	// Output is the destination file for DispatchAndSave; the extension
	// selects the encoder.
	Output string
}

func (r *Registry) validate(req DispatchRequest) (gpu.Pipeline, error) {
	if r.closed {
		return nil, ErrClosed
	}

	p, err := r.Pipeline(req.Pipeline)
	if err != nil {
		return nil, err
	}

	limits := r.dev.Limits()
	if req.Width <= 0 || req.Height <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "image %dx%d", req.Width, req.Height)
	}
	if max := limits.MaxImageDimension2D; max > 0 && (req.Width > max || req.Height > max) {
		return nil, errors.Wrapf(ErrInvalidDimensions, "image %dx%d exceeds the device maximum of %d", req.Width, req.Height, max)
	}
	for i, n := range req.Workgroups {
		if n <= 0 {
			return nil, errors.Wrapf(ErrInvalidDimensions, "workgroups %v", req.Workgroups)
		}
		if max := limits.MaxComputeWorkGroupCount[i]; max > 0 && n > max {
			return nil, errors.Wrapf(ErrInvalidDimensions, "workgroups %v exceed the device maximum of %v", req.Workgroups, limits.MaxComputeWorkGroupCount)
		}
	}

	for _, b := range p.Bindings() {
		if b.Slot == 0 && b.Kind == gpu.BindingStorageImage {
			return p, nil
		}
	}
	return nil, errors.Wrapf(ErrDescriptorSet, "pipeline %s has no storage image at binding 0", p.Name())
}

// submission is an in-flight dispatch. The readback bytes are only reachable
// through Wait, after the fence has signalled.
type submission struct {
	fence gpu.Fence
	buf   gpu.Buffer
}

func (s *submission) Wait(ctx context.Context) ([]byte, error) {
	err := s.fence.Wait(ctx)
	if err != nil {
		return nil, mark(ErrWait, err, "wait for dispatch")
	}

	data, err := s.buf.Read()
	if err != nil {
		return nil, mark(ErrReadback, err, "read back %d bytes", s.buf.Size())
	}
	return data, nil
}

// Dispatch runs one pipeline over a fresh storage image and returns the image
// contents. It blocks until the device is done; a ctx deadline bounds the wait.
// All per-dispatch resources are released before it returns.
func (r *Registry) Dispatch(ctx context.Context, req DispatchRequest) (*image.NRGBA, error) {
	p, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	log := r.log.With("dispatch", uuid.New().String(), "pipeline", p.Name())
	start := hrtime.Now()

	img, err := r.dev.CreateStorageImage(req.Width, req.Height)
	if err != nil {
		return nil, mark(ErrImageCreation, err, "storage image %dx%d", req.Width, req.Height)
	}
	defer img.Release()

	set, err := r.dev.AllocateDescriptorSet(p, 0, img)
	if err != nil {
		return nil, mark(ErrDescriptorSet, err, "bind storage image for %s", p.Name())
	}
	defer set.Release()

	buf, err := r.dev.CreateReadbackBuffer(req.Width * req.Height * 4)
	if err != nil {
		return nil, mark(ErrBufferCreation, err, "readback buffer for %dx%d", req.Width, req.Height)
	}
	defer buf.Release()

	fence, err := r.dev.Submit(
		gpu.BindPipeline(p),
		gpu.BindDescriptorSet(set),
		gpu.Dispatch(req.Workgroups[0], req.Workgroups[1], req.Workgroups[2]),
		gpu.CopyImageToBuffer(img, buf),
	)
	if err != nil {
		return nil, mark(ErrSubmission, err, "submit %s", p.Name())
	}
	// Released first so the device is idle before anything else is freed.
	defer fence.Release()

	sub := &submission{fence: fence, buf: buf}
	data, err := sub.Wait(ctx)
	if err != nil {
		return nil, err
	}

	out, err := decodeRGBA(data, req.Width, req.Height)
	if err != nil {
		return nil, err
	}

	log.Debug("dispatch complete", "width", req.Width, "height", req.Height, "workgroups", req.Workgroups, "elapsed", hrtime.Since(start))
	return out, nil
}

// DispatchAndSave runs Dispatch and writes the result to req.Output. Nothing
// is written unless the dispatch and the encoding both succeed.
func (r *Registry) DispatchAndSave(ctx context.Context, req DispatchRequest) error {
	enc, err := encoderFor(req.Output)
	if err != nil {
		return err
	}

	out, err := r.Dispatch(ctx, req)
	if err != nil {
		return err
	}

	err = save(out, req.Output, enc)
	if err != nil {
		return err
	}

	r.log.Info("dispatch saved", "output", req.Output, "width", req.Width, "height", req.Height)
	return nil
}
