package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
)

func (c *Context) createLogicalDevice() error {
	extensionNames := append([]string{}, c.requiredExtensions...)

	// Portability implementations (MoltenVK) refuse device creation unless
	// the subset extension is enabled whenever it is advertised.
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(c.physicalDevice)
	if err != nil {
		return mark(ErrDeviceCreation, err, "enumerate device extensions")
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := c.instanceDriver.CreateDevice(c.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: c.queueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return mark(ErrDeviceCreation, err, "create device on %s", c.adapterName)
	}

	c.deviceDriver, err = c.instanceDriver.BuildDeviceDriver(device)
	if err != nil {
		return mark(ErrDeviceCreation, err, "load device functions on %s", c.adapterName)
	}

	c.queue = c.deviceDriver.GetQueue(c.queueFamily, 0)
	c.log.Debug("logical device created", "queueFamily", c.queueFamily, "extensions", extensionNames)
	return nil
}
