package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

func (c *Context) createInstance(opts Options) error {
	var err error
	c.globalDriver, err = core.CreateDriverFromProcAddr(c.window.ProcAddr())
	if err != nil {
		return mark(ErrInstanceCreation, err, "load vulkan driver")
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(0, 1, 0),
		EngineName:         "bsrt",
		EngineVersion:      common.CreateVersion(0, 1, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := c.globalDriver.AvailableExtensions()
	if err != nil {
		return mark(ErrInstanceCreation, err, "enumerate instance extensions")
	}

	for _, ext := range c.window.InstanceExtensions() {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Wrapf(ErrInstanceCreation, "window requires missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := c.globalDriver.AvailableLayers()
		if err != nil {
			return mark(ErrInstanceCreation, err, "enumerate instance layers")
		}

		_, hasValidation := layers[validationLayer]
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]
		if hasValidation && hasDebugUtils {
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayer)
			instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
			instanceOptions.Next = c.debugMessengerOptions()
			c.validation = true
		} else {
			c.log.Warn("validation requested but unavailable, install the LunarG Vulkan SDK", "layer", validationLayer)
		}
	}

	instance, _, err := c.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return mark(ErrInstanceCreation, err, "create instance")
	}

	c.instanceDriver, err = c.globalDriver.BuildInstanceDriver(instance)
	if err != nil {
		return mark(ErrInstanceCreation, err, "load instance functions")
	}

	c.log.Debug("instance created", "extensions", instanceOptions.EnabledExtensionNames, "layers", instanceOptions.EnabledLayerNames)
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	if !c.validation {
		return nil
	}

	var err error
	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.debugMessenger, _, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	if err != nil {
		return mark(ErrInstanceCreation, err, "create debug messenger")
	}

	return nil
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if severity&ext_debug_utils.SeverityError != 0 {
		c.log.Error("validation", "type", msgType.String(), "message", data.Message)
	} else {
		c.log.Warn("validation", "type", msgType.String(), "message", data.Message)
	}
	return false
}
