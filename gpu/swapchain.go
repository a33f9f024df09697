package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

func (c *Context) createSurface() error {
	c.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.instanceDriver)

	surface, err := c.window.CreateSurface(c.instanceDriver.Instance(), c.surfaceExtension)
	if err != nil {
		return mark(ErrSurfaceCreation, err, "create window surface")
	}
	c.surface = surface

	supported, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceSupport(c.surface, c.physicalDevice, c.queueFamily)
	if err != nil {
		return mark(ErrSurfaceCreation, err, "query present support")
	}
	if !supported {
		c.log.Warn("graphics queue family cannot present to the window surface", "queueFamily", c.queueFamily)
	}

	return nil
}

func (c *Context) createSwapchain() error {
	c.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(c.deviceDriver)

	capabilities, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(c.surface, c.physicalDevice)
	if err != nil {
		return mark(ErrSwapchainCreation, err, "query surface capabilities")
	}

	formats, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceFormats(c.surface, c.physicalDevice)
	if err != nil {
		return mark(ErrSwapchainCreation, err, "query surface formats")
	}

	surfaceFormat, err := FirstSurfaceFormat(formats)
	if err != nil {
		return err
	}

	compositeAlpha, err := FirstCompositeAlpha(capabilities.SupportedCompositeAlpha)
	if err != nil {
		return err
	}

	width, height := c.window.DrawableSize()
	extent := core1_0.Extent2D{Width: width, Height: height}
	imageCount := SwapchainImageCount(capabilities)

	c.swapchain, _, err = c.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: c.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,
		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: compositeAlpha,
		PresentMode:    khr_surface.PresentModeFIFO,
		Clipped:        true,
	})
	if err != nil {
		return mark(ErrSwapchainCreation, err, "create swapchain %dx%d", width, height)
	}

	c.swapchainFormat = surfaceFormat.Format
	c.swapchainExtent = extent
	c.log.Info("swapchain created", "images", imageCount, "format", surfaceFormat.Format, "width", width, "height", height)
	return nil
}

func (c *Context) createImageViews() error {
	images, _, err := c.swapchainExtension.GetSwapchainImages(c.swapchain)
	if err != nil {
		return mark(ErrSwapchainCreation, err, "get swapchain images")
	}
	c.swapchainImages = images

	for _, image := range images {
		view, err := c.createImageView(image, c.swapchainFormat)
		if err != nil {
			return mark(ErrSwapchainCreation, err, "create swapchain image view")
		}
		c.swapchainImageViews = append(c.swapchainImageViews, view)
	}

	return nil
}

func (c *Context) createImageView(image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	view, _, err := c.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            image,
		ViewType:         core1_0.ImageViewType2D,
		Format:           format,
		SubresourceRange: colorRange(),
	})
	return view, err
}

func colorRange() core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}
