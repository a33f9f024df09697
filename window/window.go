// Package window wraps the SDL2 window a GPU context presents to.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// Window is a Vulkan-capable SDL window. It is created hidden and only shown
// once the GPU context built on it is complete.
type Window struct {
	window    *sdl.Window
	destroyed bool
}

// New initialises SDL video and opens a hidden window. All calls on the
// returned window must come from the thread that called New.
func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_HIDDEN|sdl.WINDOW_VULKAN)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrapf(err, "create %dx%d window", width, height)
	}

	return &Window{window: window}, nil
}

func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance, surfaces khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaces, w.window)
}

// DrawableSize is the window size in pixels, which differs from the window
// size on high-dpi displays.
func (w *Window) DrawableSize() (width, height int) {
	dw, dh := w.window.VulkanGetDrawableSize()
	return int(dw), int(dh)
}

func (w *Window) Show() {
	w.window.Show()
}

// Destroy closes the window and shuts SDL down. It is safe to call twice.
func (w *Window) Destroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true

	w.window.Destroy()
	sdl.Quit()
}
