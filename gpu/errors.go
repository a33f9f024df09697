package gpu

import "github.com/cockroachdb/errors"

// Construction failures. Each one is fatal for New and can be told apart with errors.Is.
var (
	ErrInstanceCreation    = errors.New("vulkan instance creation failed")
	ErrNoCompatibleAdapter = errors.New("no compatible adapter")
	ErrNoGraphicsQueue     = errors.New("no graphics-capable queue family")
	ErrNoComputeQueue      = errors.New("graphics queue family cannot run compute")
	ErrDeviceCreation      = errors.New("logical device creation failed")
	ErrSurfaceCreation     = errors.New("surface creation failed")
	ErrSwapchainCreation   = errors.New("swapchain creation failed")
)

// ErrClosed is returned by resource factories once the context has been closed.
var ErrClosed = errors.New("gpu context closed")

// mark wraps cause with a message and tags it with sentinel so callers can
// match on the stage while %+v still shows the driver error underneath.
func mark(sentinel, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return errors.Wrapf(sentinel, format, args...)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), sentinel)
}
