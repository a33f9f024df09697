package gpu

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// ErrNoMemoryType is returned when no memory type satisfies a request.
var ErrNoMemoryType = errors.New("no suitable memory type")

// Allocation is one dedicated block of device memory.
type Allocation struct {
	Memory    core1_0.DeviceMemory
	Size      int
	TypeIndex int
}

// MemoryAllocator hands out dedicated allocations and tracks the live ones so
// leaks are reported when the context closes.
type MemoryAllocator struct {
	log    *slog.Logger
	driver core1_0.DeviceDriver
	types  []core1_0.MemoryPropertyFlags
	live   map[*Allocation]struct{}
}

func newMemoryAllocator(log *slog.Logger, driver core1_0.DeviceDriver, properties *core1_0.PhysicalDeviceMemoryProperties) *MemoryAllocator {
	m := &MemoryAllocator{
		log:    log,
		driver: driver,
		live:   make(map[*Allocation]struct{}),
	}
	for _, memoryType := range properties.MemoryTypes {
		m.types = append(m.types, memoryType.PropertyFlags)
	}
	return m
}

// chooseMemoryType returns the first type allowed by typeFilter whose flags
// include every flag in want.
func chooseMemoryType(typeFilter uint32, types []core1_0.MemoryPropertyFlags, want core1_0.MemoryPropertyFlags) (int, error) {
	for i, flags := range types {
		typeBit := uint32(1 << i)
		if (typeFilter&typeBit) != 0 && (flags&want) == want {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %s", typeFilter, want)
}

func (m *MemoryAllocator) allocate(requirements *core1_0.MemoryRequirements, want core1_0.MemoryPropertyFlags) (*Allocation, error) {
	typeIndex, err := chooseMemoryType(requirements.MemoryTypeBits, m.types, want)
	if err != nil {
		return nil, err
	}

	memory, _, err := m.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of memory type %d", requirements.Size, typeIndex)
	}

	a := &Allocation{Memory: memory, Size: requirements.Size, TypeIndex: typeIndex}
	m.live[a] = struct{}{}
	return a, nil
}

// AllocateForImage allocates and binds memory for image.
func (m *MemoryAllocator) AllocateForImage(image core1_0.Image, want core1_0.MemoryPropertyFlags) (*Allocation, error) {
	a, err := m.allocate(m.driver.GetImageMemoryRequirements(image), want)
	if err != nil {
		return nil, err
	}

	_, err = m.driver.BindImageMemory(image, a.Memory, 0)
	if err != nil {
		m.Free(a)
		return nil, errors.Wrap(err, "bind image memory")
	}
	return a, nil
}

// AllocateForBuffer allocates and binds memory for buffer.
func (m *MemoryAllocator) AllocateForBuffer(buffer core1_0.Buffer, want core1_0.MemoryPropertyFlags) (*Allocation, error) {
	a, err := m.allocate(m.driver.GetBufferMemoryRequirements(buffer), want)
	if err != nil {
		return nil, err
	}

	_, err = m.driver.BindBufferMemory(buffer, a.Memory, 0)
	if err != nil {
		m.Free(a)
		return nil, errors.Wrap(err, "bind buffer memory")
	}
	return a, nil
}

// Map exposes size bytes of a host-visible allocation. The slice is only
// valid until unmap is called.
func (m *MemoryAllocator) Map(a *Allocation, size int) (data []byte, unmap func(), err error) {
	if size > a.Size {
		return nil, nil, errors.Newf("map of %d bytes exceeds allocation of %d", size, a.Size)
	}

	ptr, _, err := m.driver.MapMemory(a.Memory, 0, size, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "map memory")
	}

	return unsafe.Slice((*byte)(ptr), size), func() { m.driver.UnmapMemory(a.Memory) }, nil
}

// Free releases a; freeing twice is a no-op.
func (m *MemoryAllocator) Free(a *Allocation) {
	if a == nil {
		return
	}
	if _, ok := m.live[a]; !ok {
		return
	}
	delete(m.live, a)
	m.driver.FreeMemory(a.Memory, nil)
}

// Live is the number of allocations not yet freed.
func (m *MemoryAllocator) Live() int { return len(m.live) }

// Close frees everything still live.
func (m *MemoryAllocator) Close() {
	if len(m.live) > 0 {
		m.log.Warn("device memory still allocated at close", "allocations", len(m.live))
	}
	for a := range m.live {
		m.Free(a)
	}
}
