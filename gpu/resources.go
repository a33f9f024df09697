package gpu

import (
	"context"
	"fmt"
)

// BindingKind is the kind of resource a pipeline expects at a binding slot.
type BindingKind int

const (
	// BindingStorageImage is a writable RGBA8 2D image.
	BindingStorageImage BindingKind = iota
)

func (k BindingKind) String() string {
	switch k {
	case BindingStorageImage:
		return "storage-image"
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// Binding is one slot of descriptor set 0 in a compute pipeline layout.
type Binding struct {
	Slot int
	Kind BindingKind
}

// Pipeline is an immutable compute pipeline with its layout.
type Pipeline interface {
	Name() string
	Bindings() []Binding
	Release()
}

// Image is a device-local RGBA8 storage image plus its view.
type Image interface {
	Width() int
	Height() int
	Release()
}

// DescriptorSet binds resources to a pipeline's set 0.
type DescriptorSet interface {
	Release()
}

// Buffer is a host-visible buffer the device copies results into.
type Buffer interface {
	Size() int
	// Read copies the buffer contents out of mapped memory. Only call it
	// once the fence of the submission that wrote the buffer has signalled.
	Read() ([]byte, error)
	Release()
}

// Fence signals completion of one submission.
type Fence interface {
	// Wait blocks until the submission completes or ctx is done.
	Wait(ctx context.Context) error
	// Release frees the fence and the command buffer it guards. If the
	// submission has not completed, Release waits for the queue to drain first.
	Release()
}

// Op identifies a recorded command.
type Op int

const (
	OpBindPipeline Op = iota
	OpBindDescriptorSet
	OpDispatch
	OpCopyImageToBuffer
)

func (o Op) String() string {
	switch o {
	case OpBindPipeline:
		return "bind-pipeline"
	case OpBindDescriptorSet:
		return "bind-descriptor-set"
	case OpDispatch:
		return "dispatch"
	case OpCopyImageToBuffer:
		return "copy-image-to-buffer"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one entry of a command buffer recording. Only the fields
// relevant to Op are set.
type Command struct {
	Op            Op
	Pipeline      Pipeline
	DescriptorSet DescriptorSet
	Groups        [3]int
	Image         Image
	Buffer        Buffer
}

func BindPipeline(p Pipeline) Command {
	return Command{Op: OpBindPipeline, Pipeline: p}
}

func BindDescriptorSet(set DescriptorSet) Command {
	return Command{Op: OpBindDescriptorSet, DescriptorSet: set}
}

func Dispatch(x, y, z int) Command {
	return Command{Op: OpDispatch, Groups: [3]int{x, y, z}}
}

func CopyImageToBuffer(img Image, buf Buffer) Command {
	return Command{Op: OpCopyImageToBuffer, Image: img, Buffer: buf}
}
