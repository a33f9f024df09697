package pipeline

import (
	"github.com/cockroachdb/errors"
)

// Stage errors. Every error returned by the registry matches exactly one of
// these with errors.Is.
var (
	ErrUnknownPipeline   = errors.New("unknown pipeline")
	ErrInvalidDimensions = errors.New("invalid dispatch dimensions")
	ErrShaderCompile     = errors.New("shader compilation failed")
	ErrLayout            = errors.New("pipeline layout inference failed")
	ErrPipelineCreation  = errors.New("pipeline creation failed")
	ErrImageCreation     = errors.New("storage image creation failed")
	ErrDescriptorSet     = errors.New("descriptor set creation failed")
	ErrBufferCreation    = errors.New("readback buffer creation failed")
	ErrSubmission        = errors.New("command submission failed")
	ErrWait              = errors.New("waiting for completion failed")
	ErrReadback          = errors.New("readback failed")
	ErrDecode            = errors.New("readback decode failed")
	ErrEncode            = errors.New("image encoding failed")
	ErrWrite             = errors.New("image write failed")
)

// ErrClosed is returned by a registry after Close.
var ErrClosed = errors.New("pipeline registry closed")

func mark(sentinel, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return errors.Wrapf(sentinel, format, args...)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), sentinel)
}
