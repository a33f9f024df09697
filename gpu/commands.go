package gpu

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// fenceTimeout is how long one WaitForFences call blocks before the context
// is checked again.
const fenceTimeout = 100 * time.Millisecond

func (c *Context) createAllocators() error {
	var err error
	c.commandPool, _, err = c.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: c.queueFamily,
	})
	if err != nil {
		return mark(ErrDeviceCreation, err, "create command pool")
	}

	c.memory = newMemoryAllocator(c.log, c.deviceDriver, c.instanceDriver.GetPhysicalDeviceMemoryProperties(c.physicalDevice))
	c.descriptors = newDescriptorAllocator(c.log, c.deviceDriver)
	return nil
}

type vkFence struct {
	ctx           *Context
	fence         core1_0.Fence
	commandBuffer core1_0.CommandBuffer
	signalled     bool
}

func (f *vkFence) Wait(ctx context.Context) error {
	if f.signalled {
		return nil
	}
	if !f.fence.Initialized() {
		return errors.New("wait on released fence")
	}

	for {
		res, err := f.ctx.deviceDriver.WaitForFences(true, fenceTimeout, f.fence)
		if err != nil {
			return errors.Wrap(err, "wait for fence")
		}
		if res != core1_0.VKTimeout {
			f.signalled = true
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "submission still running")
		default:
		}
	}
}

func (f *vkFence) Release() {
	if !f.fence.Initialized() {
		return
	}

	if !f.signalled {
		// The command buffer may still be executing; its resources must not
		// be freed until the queue drains.
		_, err := f.ctx.deviceDriver.QueueWaitIdle(f.ctx.queue)
		if err != nil {
			f.ctx.log.Warn("queue wait idle failed while releasing fence", "err", err)
		}
	}

	f.ctx.deviceDriver.DestroyFence(f.fence, nil)
	f.ctx.deviceDriver.FreeCommandBuffers(f.commandBuffer)
	f.fence = core1_0.Fence{}
}

// recorder tracks what the command buffer has bound so far and which layout
// each image is in, so barriers can be inserted between commands.
type recorder struct {
	ctx      *Context
	buffer   core1_0.CommandBuffer
	pipeline *vkPipeline
	layouts  map[*vkImage]core1_0.ImageLayout
}

// Submit records cmds, in order, into one one-time command buffer and submits
// it to the queue. The returned fence must be released by the caller.
func (c *Context) Submit(cmds ...Command) (Fence, error) {
	if c.closed {
		return nil, ErrClosed
	}

	buffers, _, err := c.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	buffer := buffers[0]

	err = c.record(buffer, cmds)
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return nil, err
	}

	fence, _, err := c.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return nil, errors.Wrap(err, "create fence")
	}

	_, err = c.deviceDriver.QueueSubmit(c.queue, &fence,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		c.deviceDriver.DestroyFence(fence, nil)
		c.deviceDriver.FreeCommandBuffers(buffer)
		return nil, errors.Wrap(err, "queue submit")
	}

	return &vkFence{ctx: c, fence: fence, commandBuffer: buffer}, nil
}

func (c *Context) record(buffer core1_0.CommandBuffer, cmds []Command) error {
	_, err := c.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	r := &recorder{ctx: c, buffer: buffer, layouts: make(map[*vkImage]core1_0.ImageLayout)}
	for i, cmd := range cmds {
		err = r.record(cmd)
		if err != nil {
			return errors.Wrapf(err, "record command %d (%s)", i, cmd.Op)
		}
	}

	_, err = c.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	return nil
}

func (r *recorder) record(cmd Command) error {
	driver := r.ctx.deviceDriver

	switch cmd.Op {
	case OpBindPipeline:
		pipeline, ok := cmd.Pipeline.(*vkPipeline)
		if !ok || pipeline.ctx != r.ctx {
			return errors.New("pipeline was not created by this context")
		}
		r.pipeline = pipeline
		driver.CmdBindPipeline(r.buffer, core1_0.PipelineBindPointCompute, pipeline.pipeline)

	case OpBindDescriptorSet:
		set, ok := cmd.DescriptorSet.(*vkDescriptorSet)
		if !ok || set.ctx != r.ctx || set.lease == nil {
			return errors.New("descriptor set was not created by this context")
		}
		if r.pipeline == nil {
			return errors.New("descriptor set bound before any pipeline")
		}
		if set.pipeline != r.pipeline {
			return errors.Newf("descriptor set for %s bound while %s is bound", set.pipeline.name, r.pipeline.name)
		}
		driver.CmdBindDescriptorSets(r.buffer, core1_0.PipelineBindPointCompute, r.pipeline.layout, 0,
			[]core1_0.DescriptorSet{set.lease.Set}, nil)
		// Images bound for the first time are still UNDEFINED.
		if _, tracked := r.layouts[set.image]; !tracked {
			r.layouts[set.image] = core1_0.ImageLayoutUndefined
		}

	case OpDispatch:
		if r.pipeline == nil {
			return errors.New("dispatch before any pipeline is bound")
		}
		for _, n := range cmd.Groups {
			if n <= 0 {
				return errors.Newf("invalid workgroup count %v", cmd.Groups)
			}
		}
		// Storage images are written in GENERAL layout.
		for img, layout := range r.layouts {
			if layout != core1_0.ImageLayoutGeneral {
				err := r.transition(img, core1_0.ImageLayoutGeneral)
				if err != nil {
					return err
				}
			}
		}
		driver.CmdDispatch(r.buffer, cmd.Groups[0], cmd.Groups[1], cmd.Groups[2])
		for img := range r.layouts {
			r.layouts[img] = core1_0.ImageLayoutGeneral
		}

	case OpCopyImageToBuffer:
		img, ok := cmd.Image.(*vkImage)
		if !ok || img.ctx != r.ctx {
			return errors.New("image was not created by this context")
		}
		buf, ok := cmd.Buffer.(*vkBuffer)
		if !ok || buf.ctx != r.ctx {
			return errors.New("buffer was not created by this context")
		}
		if buf.size < img.width*img.height*4 {
			return errors.Newf("buffer of %d bytes cannot hold %dx%d RGBA8 image", buf.size, img.width, img.height)
		}
		return r.copyImageToBuffer(img, buf)

	default:
		return errors.Newf("unknown command %s", cmd.Op)
	}
	return nil
}

func (r *recorder) transition(img *vkImage, newLayout core1_0.ImageLayout) error {
	oldLayout, tracked := r.layouts[img]
	if !tracked {
		oldLayout = core1_0.ImageLayoutUndefined
	}

	var sourceStage, destStage core1_0.PipelineStageFlags
	var sourceAccess, destAccess core1_0.AccessFlags

	switch {
	case newLayout == core1_0.ImageLayoutGeneral:
		sourceStage = core1_0.PipelineStageTopOfPipe
		destStage = core1_0.PipelineStageComputeShader
		destAccess = core1_0.AccessShaderWrite
		if oldLayout == core1_0.ImageLayoutTransferSrcOptimal {
			sourceStage = core1_0.PipelineStageTransfer
			sourceAccess = core1_0.AccessTransferRead
		}
	case oldLayout == core1_0.ImageLayoutGeneral && newLayout == core1_0.ImageLayoutTransferSrcOptimal:
		sourceStage = core1_0.PipelineStageComputeShader
		sourceAccess = core1_0.AccessShaderWrite
		destStage = core1_0.PipelineStageTransfer
		destAccess = core1_0.AccessTransferRead
	default:
		return errors.Errorf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
	}

	err := r.ctx.deviceDriver.CmdPipelineBarrier(r.buffer, sourceStage, destStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               img.image,
			SubresourceRange:    colorRange(),
			SrcAccessMask:       sourceAccess,
			DstAccessMask:       destAccess,
		},
	})
	if err != nil {
		return errors.Wrap(err, "image layout barrier")
	}

	r.layouts[img] = newLayout
	return nil
}

func (r *recorder) copyImageToBuffer(img *vkImage, buf *vkBuffer) error {
	err := r.transition(img, core1_0.ImageLayoutTransferSrcOptimal)
	if err != nil {
		return err
	}

	err = r.ctx.deviceDriver.CmdCopyImageToBuffer(r.buffer, img.image, core1_0.ImageLayoutTransferSrcOptimal, buf.buffer,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: img.width, Height: img.height, Depth: 1},
		},
	)
	if err != nil {
		return errors.Wrap(err, "copy image to buffer")
	}

	// Make the transfer visible to host reads of the mapped buffer.
	return r.ctx.deviceDriver.CmdPipelineBarrier(r.buffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageHost, 0, nil,
		[]core1_0.BufferMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessTransferWrite,
				DstAccessMask:       core1_0.AccessHostRead,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Buffer:              buf.buffer,
				Offset:              0,
				Size:                buf.size,
			},
		}, nil)
}
