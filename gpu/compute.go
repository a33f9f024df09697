package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// maxStorageImages bounds the bindings a compute pipeline may declare.
const maxStorageImages = 8

// StorageFormat is the only pixel format storage images are created with.
const StorageFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

type vkPipeline struct {
	ctx       *Context
	name      string
	bindings  []Binding
	setLayout core1_0.DescriptorSetLayout
	layout    core1_0.PipelineLayout
	pipeline  core1_0.Pipeline
}

func (p *vkPipeline) Name() string { return p.name }

func (p *vkPipeline) Bindings() []Binding { return append([]Binding(nil), p.bindings...) }

func (p *vkPipeline) binding(slot int) (Binding, bool) {
	for _, b := range p.bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}

func (p *vkPipeline) Release() {
	driver := p.ctx.deviceDriver
	if p.pipeline.Initialized() {
		driver.DestroyPipeline(p.pipeline, nil)
		p.pipeline = core1_0.Pipeline{}
	}
	if p.layout.Initialized() {
		driver.DestroyPipelineLayout(p.layout, nil)
		p.layout = core1_0.PipelineLayout{}
	}
	if p.setLayout.Initialized() {
		driver.DestroyDescriptorSetLayout(p.setLayout, nil)
		p.setLayout = core1_0.DescriptorSetLayout{}
	}
}

// CreateComputePipeline builds a pipeline from SPIR-V code whose descriptor
// set 0 holds exactly bindings. The shader module only lives for the call.
func (c *Context) CreateComputePipeline(name string, code []uint32, entryPoint string, bindings []Binding) (Pipeline, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if len(bindings) > maxStorageImages {
		return nil, errors.Newf("pipeline %s declares %d bindings, at most %d are supported", name, len(bindings), maxStorageImages)
	}

	p := &vkPipeline{ctx: c, name: name, bindings: append([]Binding(nil), bindings...)}

	var layoutBindings []core1_0.DescriptorSetLayoutBinding
	for _, b := range bindings {
		if b.Kind != BindingStorageImage {
			return nil, errors.Newf("pipeline %s: unsupported binding kind %s at slot %d", name, b.Kind, b.Slot)
		}
		layoutBindings = append(layoutBindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Slot,
			DescriptorType:  core1_0.DescriptorTypeStorageImage,
			DescriptorCount: 1,

			StageFlags: core1_0.StageCompute,
		})
	}

	var err error
	p.setLayout, _, err = c.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: layoutBindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}

	p.layout, _, err = c.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{p.setLayout},
	})
	if err != nil {
		p.Release()
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	shader, _, err := c.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		p.Release()
		return nil, errors.Wrap(err, "create shader module")
	}
	defer c.deviceDriver.DestroyShaderModule(shader, nil)

	pipelines, _, err := c.deviceDriver.CreateComputePipelines(nil, nil,
		core1_0.ComputePipelineCreateInfo{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: shader,
				Name:   entryPoint,
			},
			Layout:            p.layout,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		p.Release()
		return nil, errors.Wrapf(err, "create compute pipeline %s", name)
	}
	p.pipeline = pipelines[0]

	c.log.Debug("compute pipeline created", "name", name, "entryPoint", entryPoint, "bindings", len(bindings))
	return p, nil
}

type vkImage struct {
	ctx    *Context
	width  int
	height int
	image  core1_0.Image
	view   core1_0.ImageView
	memory *Allocation
}

func (i *vkImage) Width() int  { return i.width }
func (i *vkImage) Height() int { return i.height }

func (i *vkImage) Release() {
	if i.view.Initialized() {
		i.ctx.deviceDriver.DestroyImageView(i.view, nil)
		i.view = core1_0.ImageView{}
	}
	if i.image.Initialized() {
		i.ctx.deviceDriver.DestroyImage(i.image, nil)
		i.image = core1_0.Image{}
	}
	i.ctx.memory.Free(i.memory)
	i.memory = nil
}

// CreateStorageImage creates a device-local RGBA8 image usable as a compute
// storage image and as a copy source.
func (c *Context) CreateStorageImage(width, height int) (Image, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("invalid storage image size %dx%d", width, height)
	}

	img := &vkImage{ctx: c, width: width, height: height}

	var err error
	img.image, _, err = c.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        StorageFormat,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageStorage | core1_0.ImageUsageTransferSrc,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create image %dx%d", width, height)
	}

	img.memory, err = c.memory.AllocateForImage(img.image, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		img.Release()
		return nil, err
	}

	img.view, err = c.createImageView(img.image, StorageFormat)
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "create storage image view")
	}

	return img, nil
}

type vkDescriptorSet struct {
	ctx      *Context
	pipeline *vkPipeline
	image    *vkImage
	lease    *DescriptorLease
}

func (s *vkDescriptorSet) Release() {
	if s.lease == nil {
		return
	}
	s.ctx.descriptors.Release(s.lease)
	s.lease = nil
}

// AllocateDescriptorSet allocates a set against p's layout and writes img to
// slot, which p must declare as a storage image.
func (c *Context) AllocateDescriptorSet(p Pipeline, slot int, img Image) (DescriptorSet, error) {
	if c.closed {
		return nil, ErrClosed
	}

	pipeline, ok := p.(*vkPipeline)
	if !ok || pipeline.ctx != c {
		return nil, errors.Newf("pipeline %s was not created by this context", p.Name())
	}
	image, ok := img.(*vkImage)
	if !ok || image.ctx != c {
		return nil, errors.New("image was not created by this context")
	}

	binding, ok := pipeline.binding(slot)
	if !ok {
		return nil, errors.Newf("pipeline %s has no binding at slot %d", pipeline.name, slot)
	}
	if binding.Kind != BindingStorageImage {
		return nil, errors.Newf("pipeline %s binding %d is %s, not a storage image", pipeline.name, slot, binding.Kind)
	}

	lease, err := c.descriptors.Allocate(pipeline.setLayout)
	if err != nil {
		return nil, err
	}

	err = c.deviceDriver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          lease.Set,
			DstBinding:      slot,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeStorageImage,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   image.view,
					ImageLayout: core1_0.ImageLayoutGeneral,
				},
			},
		},
	}, nil)
	if err != nil {
		c.descriptors.Release(lease)
		return nil, errors.Wrap(err, "write descriptor set")
	}

	return &vkDescriptorSet{ctx: c, pipeline: pipeline, image: image, lease: lease}, nil
}

type vkBuffer struct {
	ctx    *Context
	size   int
	buffer core1_0.Buffer
	memory *Allocation
}

func (b *vkBuffer) Size() int { return b.size }

func (b *vkBuffer) Read() ([]byte, error) {
	if b.memory == nil {
		return nil, errors.New("read of released buffer")
	}

	data, unmap, err := b.ctx.memory.Map(b.memory, b.size)
	if err != nil {
		return nil, err
	}
	defer unmap()

	out := make([]byte, b.size)
	copy(out, data)
	return out, nil
}

func (b *vkBuffer) Release() {
	if b.buffer.Initialized() {
		b.ctx.deviceDriver.DestroyBuffer(b.buffer, nil)
		b.buffer = core1_0.Buffer{}
	}
	b.ctx.memory.Free(b.memory)
	b.memory = nil
}

// CreateReadbackBuffer creates a host-visible, coherent buffer of exactly size
// bytes that can be the destination of a copy.
func (c *Context) CreateReadbackBuffer(size int) (Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if size <= 0 {
		return nil, errors.Newf("invalid buffer size %d", size)
	}

	buf := &vkBuffer{ctx: c, size: size}

	var err error
	buf.buffer, _, err = c.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", size)
	}

	buf.memory, err = c.memory.AllocateForBuffer(buf.buffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		buf.Release()
		return nil, err
	}

	return buf, nil
}
