package gpu

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// setsPerPool is the capacity of every pool the allocator opens.
const setsPerPool = 16

// DescriptorAllocator hands out storage-image descriptor sets from a growing
// list of pools. Sets are allocated from the newest pool; a new pool is opened
// when it is full.
type DescriptorAllocator struct {
	log    *slog.Logger
	driver core1_0.DeviceDriver
	pools  []*descriptorPool
	live   map[*DescriptorLease]struct{}
}

type descriptorPool struct {
	pool core1_0.DescriptorPool
	used int
}

// DescriptorLease is one allocated set and the pool it came from.
type DescriptorLease struct {
	Set  core1_0.DescriptorSet
	pool *descriptorPool
}

func newDescriptorAllocator(log *slog.Logger, driver core1_0.DeviceDriver) *DescriptorAllocator {
	return &DescriptorAllocator{
		log:    log,
		driver: driver,
		live:   make(map[*DescriptorLease]struct{}),
	}
}

func (d *DescriptorAllocator) openPool() (*descriptorPool, error) {
	pool, _, err := d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		Flags:   core1_0.DescriptorPoolCreateFreeDescriptorSet,
		MaxSets: setsPerPool,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeStorageImage,
				DescriptorCount: setsPerPool * maxStorageImages,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}

	p := &descriptorPool{pool: pool}
	d.pools = append(d.pools, p)
	d.log.Debug("descriptor pool opened", "pools", len(d.pools))
	return p, nil
}

// Allocate creates one set with layout.
func (d *DescriptorAllocator) Allocate(layout core1_0.DescriptorSetLayout) (*DescriptorLease, error) {
	var current *descriptorPool
	if len(d.pools) > 0 {
		current = d.pools[len(d.pools)-1]
	}

	if current == nil || current.used >= setsPerPool {
		var err error
		current, err = d.openPool()
		if err != nil {
			return nil, err
		}
	}

	sets, _, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: current.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor set")
	}

	current.used++
	lease := &DescriptorLease{Set: sets[0], pool: current}
	d.live[lease] = struct{}{}
	return lease, nil
}

// Release returns the set to its pool; releasing twice is a no-op.
func (d *DescriptorAllocator) Release(lease *DescriptorLease) {
	if _, ok := d.live[lease]; !ok {
		return
	}
	delete(d.live, lease)
	lease.pool.used--

	_, err := d.driver.FreeDescriptorSets(lease.Set)
	if err != nil {
		d.log.Warn("free descriptor set failed", "err", err)
	}
}

func (d *DescriptorAllocator) Live() int { return len(d.live) }

// Close destroys every pool, which frees any set still live.
func (d *DescriptorAllocator) Close() {
	if len(d.live) > 0 {
		d.log.Warn("descriptor sets still allocated at close", "sets", len(d.live))
	}
	d.live = make(map[*DescriptorLease]struct{})

	for i := len(d.pools) - 1; i >= 0; i-- {
		d.driver.DestroyDescriptorPool(d.pools[i].pool, nil)
	}
	d.pools = nil
}
