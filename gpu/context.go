package gpu

import (
	"log/slog"
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Window is the native window the context presents to.
type Window interface {
	// ProcAddr returns vkGetInstanceProcAddr as loaded by the windowing system.
	ProcAddr() unsafe.Pointer
	InstanceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaces khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	DrawableSize() (width, height int)
	Show()
}

// Options tune context construction. The zero value is usable.
type Options struct {
	ApplicationName string
	// Validation enables the Khronos validation layer when it is installed.
	Validation bool
	// DeviceExtensions are required on top of RequiredDeviceExtensions.
	DeviceExtensions []string
}

// Context owns every handle needed to submit GPU work and present to a window.
// It is created once, used from a single thread, and never rebuilt.
type Context struct {
	log    *slog.Logger
	window Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	validation       bool
	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	requiredExtensions []string
	physicalDevice     core1_0.PhysicalDevice
	adapterName        string
	limits             Limits
	queueFamily        int
	queue              core1_0.Queue

	swapchainExtension  khr_swapchain.ExtensionDriver
	swapchain           khr_swapchain.Swapchain
	swapchainImages     []core1_0.Image
	swapchainImageViews []core1_0.ImageView
	swapchainFormat     core1_0.Format
	swapchainExtent     core1_0.Extent2D

	commandPool core1_0.CommandPool
	memory      *MemoryAllocator
	descriptors *DescriptorAllocator

	closed bool
}

// New acquires adapter, device, queue, surface and swapchain in that order.
// The window is shown only once everything succeeded; on failure whatever was
// created is released and the returned error matches one of the Err* stages.
func New(log *slog.Logger, win Window, opts Options) (*Context, error) {
	if opts.ApplicationName == "" {
		opts.ApplicationName = "bsrt"
	}

	c := &Context{
		log:    log.With("component", "gpu"),
		window: win,
	}
	c.requiredExtensions = append(append([]string{}, RequiredDeviceExtensions...), opts.DeviceExtensions...)

	err := c.init(opts)
	if err != nil {
		c.Close()
		return nil, err
	}

	win.Show()
	return c, nil
}

func (c *Context) init(opts Options) error {
	err := c.createInstance(opts)
	if err != nil {
		return err
	}

	err = c.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = c.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = c.createLogicalDevice()
	if err != nil {
		return err
	}

	err = c.createSurface()
	if err != nil {
		return err
	}

	err = c.createSwapchain()
	if err != nil {
		return err
	}

	err = c.createImageViews()
	if err != nil {
		return err
	}

	return c.createAllocators()
}

func (c *Context) AdapterName() string { return c.adapterName }

func (c *Context) QueueFamily() int { return c.queueFamily }

// Limits are the selected adapter's dispatch limits.
func (c *Context) Limits() Limits { return c.limits }

func (c *Context) SwapchainImageCount() int { return len(c.swapchainImages) }

func (c *Context) SwapchainFormat() core1_0.Format { return c.swapchainFormat }

func (c *Context) SwapchainExtent() core1_0.Extent2D { return c.swapchainExtent }

func (c *Context) Memory() *MemoryAllocator { return c.memory }

func (c *Context) Descriptors() *DescriptorAllocator { return c.descriptors }

// Close releases everything in reverse creation order. Pipelines and other
// resources handed out by the context must be released before Close.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true

	if c.deviceDriver != nil {
		_, err := c.deviceDriver.DeviceWaitIdle()
		if err != nil {
			c.log.Warn("device wait idle failed during close", "err", err)
		}
	}

	for _, imageView := range c.swapchainImageViews {
		c.deviceDriver.DestroyImageView(imageView, nil)
	}
	c.swapchainImageViews = nil

	if c.swapchain.Initialized() {
		c.swapchainExtension.DestroySwapchain(c.swapchain, nil)
	}

	if c.commandPool.Initialized() {
		c.deviceDriver.DestroyCommandPool(c.commandPool, nil)
	}

	if c.descriptors != nil {
		c.descriptors.Close()
	}

	if c.memory != nil {
		c.memory.Close()
	}

	if c.deviceDriver != nil {
		c.deviceDriver.DestroyDevice(nil)
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
	}

	if c.surface.Initialized() {
		c.surfaceExtension.DestroySurface(c.surface, nil)
	}

	if c.instanceDriver != nil {
		c.instanceDriver.DestroyInstance(nil)
	}
}
