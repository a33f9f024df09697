package gpu

import (
	"sort"

	"github.com/vkngwrapper/core/v3/core1_0"
)

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return mark(ErrNoCompatibleAdapter, err, "enumerate physical devices")
	}

	adapters := make([]AdapterInfo, 0, len(physicalDevices))
	for _, device := range physicalDevices {
		adapters = append(adapters, c.describeAdapter(device))
	}

	idx, err := SelectAdapter(adapters, c.requiredExtensions)
	if err != nil {
		return err
	}

	c.physicalDevice = physicalDevices[idx]
	c.adapterName = adapters[idx].Name
	c.limits = adapters[idx].Limits
	c.log.Info("physical device selected", "name", c.adapterName, "index", idx, "candidates", len(adapters))

	var queueFamilies []core1_0.QueueFamilyProperties
	for familyIdx, family := range c.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(c.physicalDevice) {
		if family == nil {
			continue
		}
		c.log.Info("queue family found", "index", familyIdx, "queues", family.QueueCount, "flags", family.QueueFlags)
		queueFamilies = append(queueFamilies, *family)
	}

	c.queueFamily, err = FirstGraphicsFamily(queueFamilies)
	return err
}

// describeAdapter never fails: an adapter whose properties cannot be read
// simply offers no extensions and loses the selection.
func (c *Context) describeAdapter(physicalDevice core1_0.PhysicalDevice) AdapterInfo {
	info := AdapterInfo{Name: "unknown"}

	properties, err := c.instanceDriver.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		c.log.Warn("could not get physical device properties", "err", err)
	} else {
		info.Name = properties.DriverName
		info.Limits = limitsOf(properties)
		c.log.Debug("adapter properties", "name", info.Name, "type", properties.DriverType, "api", properties.APIVersion)
	}

	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		c.log.Warn("could not get physical device extensions", "name", info.Name, "err", err)
		return info
	}

	for name := range extensions {
		info.Extensions = append(info.Extensions, name)
	}
	sort.Strings(info.Extensions)

	c.log.Debug("adapter enumerated", "name", info.Name, "extensions", len(info.Extensions))
	return info
}
