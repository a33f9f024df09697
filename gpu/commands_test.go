package gpu

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"go.uber.org/mock/gomock"
)

// newMockContext builds a context around a mocked device driver, as if New
// had already run.
func newMockContext(t *testing.T) (*Context, *mocks1_0.MockCoreDeviceDriver, core1_0.Device) {
	t.Helper()
	ctrl := gomock.NewController(t)

	device := mocks.NewDummyDevice(common.Vulkan1_0, []string{})
	driver := mocks1_0.NewMockCoreDeviceDriver(ctrl)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := &Context{
		log:          log,
		deviceDriver: driver,
		queue:        mocks.NewDummyQueue(device),
		commandPool:  mocks.NewDummyCommandPool(device),
	}
	c.memory = newMemoryAllocator(log, driver, &core1_0.PhysicalDeviceMemoryProperties{})
	c.descriptors = newDescriptorAllocator(log, driver)
	return c, driver, device
}

type mockResources struct {
	pipeline *vkPipeline
	image    *vkImage
	buffer   *vkBuffer
	set      *vkDescriptorSet
}

func newMockResources(c *Context, device core1_0.Device, name string, width, height int) mockResources {
	pool := mocks.NewDummyDescriptorPool(device)
	p := &vkPipeline{
		ctx:       c,
		name:      name,
		bindings:  []Binding{{Slot: 0, Kind: BindingStorageImage}},
		setLayout: mocks.NewDummyDescriptorSetLayout(device),
		layout:    mocks.NewDummyPipelineLayout(device),
		pipeline:  mocks.NewDummyPipeline(device),
	}
	img := &vkImage{ctx: c, width: width, height: height, image: mocks.NewDummyImage(device)}
	buf := &vkBuffer{ctx: c, size: width * height * 4, buffer: mocks.NewDummyBuffer(device)}
	set := &vkDescriptorSet{
		ctx:      c,
		pipeline: p,
		image:    img,
		lease:    &DescriptorLease{Set: mocks.NewDummyDescriptorSet(pool, device)},
	}
	return mockResources{pipeline: p, image: img, buffer: buf, set: set}
}

func imageBarrier(img *vkImage, oldLayout, newLayout core1_0.ImageLayout, src, dst core1_0.AccessFlags) []core1_0.ImageMemoryBarrier {
	return []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               img.image,
			SubresourceRange:    colorRange(),
			SrcAccessMask:       src,
			DstAccessMask:       dst,
		},
	}
}

func TestRecordInsertsBarriersInOrder(t *testing.T) {
	c, driver, device := newMockContext(t)
	res := newMockResources(c, device, "test", 8, 4)
	cb := mocks.NewDummyCommandBuffer(c.commandPool, device)

	gomock.InOrder(
		driver.EXPECT().BeginCommandBuffer(cb, core1_0.CommandBufferBeginInfo{
			Flags: core1_0.CommandBufferUsageOneTimeSubmit,
		}).Return(core1_0.VKSuccess, nil),
		driver.EXPECT().CmdBindPipeline(cb, core1_0.PipelineBindPointCompute, res.pipeline.pipeline),
		driver.EXPECT().CmdBindDescriptorSets(cb, core1_0.PipelineBindPointCompute, res.pipeline.layout, 0,
			[]core1_0.DescriptorSet{res.set.lease.Set}, gomock.Nil()),
		driver.EXPECT().CmdPipelineBarrier(cb, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageComputeShader,
			core1_0.DependencyFlags(0), gomock.Nil(), gomock.Nil(),
			imageBarrier(res.image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutGeneral, 0, core1_0.AccessShaderWrite),
		).Return(nil),
		driver.EXPECT().CmdDispatch(cb, 8, 4, 1),
		driver.EXPECT().CmdPipelineBarrier(cb, core1_0.PipelineStageComputeShader, core1_0.PipelineStageTransfer,
			core1_0.DependencyFlags(0), gomock.Nil(), gomock.Nil(),
			imageBarrier(res.image, core1_0.ImageLayoutGeneral, core1_0.ImageLayoutTransferSrcOptimal, core1_0.AccessShaderWrite, core1_0.AccessTransferRead),
		).Return(nil),
		driver.EXPECT().CmdCopyImageToBuffer(cb, res.image.image, core1_0.ImageLayoutTransferSrcOptimal, res.buffer.buffer,
			core1_0.BufferImageCopy{
				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask: core1_0.ImageAspectColor,
					LayerCount: 1,
				},
				ImageExtent: core1_0.Extent3D{Width: 8, Height: 4, Depth: 1},
			},
		).Return(nil),
		driver.EXPECT().CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageHost,
			core1_0.DependencyFlags(0), gomock.Nil(),
			[]core1_0.BufferMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessTransferWrite,
					DstAccessMask:       core1_0.AccessHostRead,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Buffer:              res.buffer.buffer,
					Size:                8 * 4 * 4,
				},
			}, gomock.Nil(),
		).Return(nil),
		driver.EXPECT().EndCommandBuffer(cb).Return(core1_0.VKSuccess, nil),
	)

	err := c.record(cb, []Command{
		BindPipeline(res.pipeline),
		BindDescriptorSet(res.set),
		Dispatch(8, 4, 1),
		CopyImageToBuffer(res.image, res.buffer),
	})
	require.NoError(t, err)
}

func TestRecordRejectsMisorderedCommands(t *testing.T) {
	c, driver, device := newMockContext(t)
	first := newMockResources(c, device, "first", 2, 2)
	second := newMockResources(c, device, "second", 2, 2)
	cb := mocks.NewDummyCommandBuffer(c.commandPool, device)

	tests := map[string]struct {
		cmds  []Command
		binds int
		want  string
	}{
		"set of another pipeline": {
			cmds:  []Command{BindPipeline(first.pipeline), BindDescriptorSet(second.set)},
			binds: 1,
			want:  "bound while first is bound",
		},
		"set before pipeline": {
			cmds: []Command{BindDescriptorSet(first.set)},
			want: "before any pipeline",
		},
		"dispatch before pipeline": {
			cmds: []Command{Dispatch(1, 1, 1)},
			want: "before any pipeline",
		},
		"short buffer": {
			cmds: []Command{CopyImageToBuffer(first.image, &vkBuffer{ctx: c, size: 15, buffer: mocks.NewDummyBuffer(device)})},
			want: "cannot hold",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			driver.EXPECT().BeginCommandBuffer(cb, gomock.Any()).Return(core1_0.VKSuccess, nil)
			if tt.binds > 0 {
				driver.EXPECT().CmdBindPipeline(cb, core1_0.PipelineBindPointCompute, gomock.Any()).Times(tt.binds)
			}

			err := c.record(cb, tt.cmds)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSubmitFreesCommandBufferOnRecordFailure(t *testing.T) {
	c, driver, device := newMockContext(t)
	cb := mocks.NewDummyCommandBuffer(c.commandPool, device)

	gomock.InOrder(
		driver.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        c.commandPool,
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}).Return([]core1_0.CommandBuffer{cb}, core1_0.VKSuccess, nil),
		driver.EXPECT().BeginCommandBuffer(cb, gomock.Any()).Return(core1_0.VKSuccess, nil),
		driver.EXPECT().FreeCommandBuffers(cb),
	)

	fence, err := c.Submit(Dispatch(1, 1, 1))
	assert.Nil(t, fence)
	assert.Error(t, err)
}

func TestFenceWaitPollsUntilSignalled(t *testing.T) {
	c, driver, device := newMockContext(t)
	f := &vkFence{ctx: c, fence: mocks.NewDummyFence(device), commandBuffer: mocks.NewDummyCommandBuffer(c.commandPool, device)}

	gomock.InOrder(
		driver.EXPECT().WaitForFences(true, fenceTimeout, f.fence).Return(core1_0.VKTimeout, nil).Times(2),
		driver.EXPECT().WaitForFences(true, fenceTimeout, f.fence).Return(core1_0.VKSuccess, nil),
	)
	require.NoError(t, f.Wait(context.Background()))
	require.NoError(t, f.Wait(context.Background()), "a signalled fence is not waited on again")

	fence, cb := f.fence, f.commandBuffer
	gomock.InOrder(
		driver.EXPECT().DestroyFence(fence, gomock.Nil()),
		driver.EXPECT().FreeCommandBuffers(cb),
	)
	f.Release()
	f.Release()
}

func TestFenceWaitHonoursContext(t *testing.T) {
	c, driver, device := newMockContext(t)
	f := &vkFence{ctx: c, fence: mocks.NewDummyFence(device), commandBuffer: mocks.NewDummyCommandBuffer(c.commandPool, device)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	driver.EXPECT().WaitForFences(true, fenceTimeout, f.fence).Return(core1_0.VKTimeout, nil).Times(1)
	err := f.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	// The submission may still be running, so the queue drains before the
	// fence and command buffer go away.
	fence, cb := f.fence, f.commandBuffer
	gomock.InOrder(
		driver.EXPECT().QueueWaitIdle(c.queue).Return(core1_0.VKSuccess, nil),
		driver.EXPECT().DestroyFence(fence, gomock.Nil()),
		driver.EXPECT().FreeCommandBuffers(cb),
	)
	f.Release()
}

func TestFenceWaitDriverError(t *testing.T) {
	c, driver, device := newMockContext(t)
	f := &vkFence{ctx: c, fence: mocks.NewDummyFence(device), commandBuffer: mocks.NewDummyCommandBuffer(c.commandPool, device)}

	driver.EXPECT().WaitForFences(true, fenceTimeout, f.fence).Return(core1_0.VKErrorDeviceLost, errors.New("device lost"))
	err := f.Wait(context.Background())
	assert.ErrorContains(t, err, "device lost")
}
