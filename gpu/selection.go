package gpu

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// RequiredDeviceExtensions is the extension set every adapter must offer.
var RequiredDeviceExtensions = []string{khr_swapchain.ExtensionName}

// AdapterInfo is what adapter selection looks at for one physical device.
type AdapterInfo struct {
	Name       string
	Extensions []string
	Limits     Limits
}

func (a AdapterInfo) missing(required []string) []string {
	supported := make(map[string]struct{}, len(a.Extensions))
	for _, ext := range a.Extensions {
		supported[ext] = struct{}{}
	}

	var missing []string
	for _, ext := range required {
		if _, ok := supported[ext]; !ok {
			missing = append(missing, ext)
		}
	}
	return missing
}

// SelectAdapter returns the index of the first adapter whose extensions are a
// superset of required. Later adapters are never preferred over earlier ones.
func SelectAdapter(adapters []AdapterInfo, required []string) (int, error) {
	if len(adapters) == 0 {
		return -1, errors.Wrap(ErrNoCompatibleAdapter, "no adapters enumerated")
	}

	var rejected []string
	for i, adapter := range adapters {
		missing := adapter.missing(required)
		if len(missing) == 0 {
			return i, nil
		}
		rejected = append(rejected, adapter.Name+" (missing "+strings.Join(missing, ", ")+")")
	}

	return -1, errors.Wrapf(ErrNoCompatibleAdapter, "%d adapters rejected: %s", len(adapters), strings.Join(rejected, "; "))
}

// FirstGraphicsFamily returns the index of the first queue family advertising
// graphics. Compute pipelines are submitted to the same queue, so that family
// must also advertise compute. No attempt is made to spread work over several
// families.
func FirstGraphicsFamily(families []core1_0.QueueFamilyProperties) (int, error) {
	for idx, family := range families {
		if (family.QueueFlags & core1_0.QueueGraphics) == 0 {
			continue
		}
		if (family.QueueFlags & core1_0.QueueCompute) == 0 {
			return -1, errors.Wrapf(ErrNoComputeQueue, "queue family %d supports graphics but not compute", idx)
		}
		return idx, nil
	}
	return -1, errors.Wrapf(ErrNoGraphicsQueue, "none of %d queue families supports graphics", len(families))
}

// Limits are the device limits a dispatch is checked against. A zero field
// means the limit could not be read and is not enforced.
type Limits struct {
	MaxComputeWorkGroupCount [3]int
	MaxImageDimension2D      int
}

func limitsOf(properties *core1_0.PhysicalDeviceProperties) Limits {
	if properties == nil || properties.Limits == nil {
		return Limits{}
	}
	return Limits{
		MaxComputeWorkGroupCount: properties.Limits.MaxComputeWorkGroupCount,
		MaxImageDimension2D:      properties.Limits.MaxImageDimension2D,
	}
}

// SwapchainImageCount asks for one image more than the surface minimum, within
// the surface maximum when there is one.
func SwapchainImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// FirstSurfaceFormat returns the first format the surface reports.
func FirstSurfaceFormat(formats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, errors.Wrap(ErrSwapchainCreation, "surface reports no formats")
	}
	return formats[0], nil
}

// FirstCompositeAlpha returns the lowest composite alpha bit set in supported.
func FirstCompositeAlpha(supported khr_surface.CompositeAlphaFlags) (khr_surface.CompositeAlphaFlags, error) {
	for bit := 0; bit < 32; bit++ {
		mode := khr_surface.CompositeAlphaFlags(1 << bit)
		if supported&mode != 0 {
			return mode, nil
		}
	}
	return 0, errors.Wrap(ErrSwapchainCreation, "surface supports no composite alpha mode")
}
