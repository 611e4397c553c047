// Package kernel is the facade (component C0) that wires the task
// registry, the shared-memory registry, the reference scheduler, the
// reaper, and the ambient logging/telemetry stack into one bootable
// unit, the way nomad/client.Client wires allocrunner, devicemanager,
// consul and hoststats behind one constructor.
package kernel

import (
	"context"
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/skift-os/kernel/memory"
	"github.com/skift-os/kernel/phys"
	"github.com/skift-os/kernel/reaper"
	"github.com/skift-os/kernel/sched"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/telemetry"
	"github.com/skift-os/kernel/tick"
	"github.com/skift-os/kernel/vm"
)

// DefaultPollInterval is how often the reference scheduler's Run loop
// wakes to advance ticks and poll blocked tasks.
const DefaultPollInterval = 10 * time.Millisecond

// DefaultPhysicalPages backs the default bitmap allocator: 65536 pages
// is 256MiB at a 4KiB page size, ample for tests and the demo command.
const DefaultPhysicalPages = 65536

// Kernel bundles every subsystem spec.md §2 names, booted and wired
// together.
type Kernel struct {
	BootID string
	Logger hclog.Logger
	Clock  tick.Clock

	Tasks  *task.Registry
	Memory *memory.Registry
	Sched  *sched.RoundRobin

	idle   *task.Task
	reaper *task.Task

	pollInterval time.Duration
	cancelPoll   context.CancelFunc
}

// Option configures a Kernel at construction.
type Option func(*config)

type config struct {
	logger         hclog.Logger
	clock          tick.Clock
	vmMgr          vm.Manager
	physAlloc      phys.Allocator
	reaperInterval int64
	pollInterval   time.Duration
}

// WithLogger installs the root logger every subsystem sub-scopes off
// of. Defaults to hclog.NewNullLogger().
func WithLogger(l hclog.Logger) Option { return func(c *config) { c.logger = l } }

// WithClock installs the tick source. Defaults to a wall clock.
func WithClock(clk tick.Clock) Option { return func(c *config) { c.clock = clk } }

// WithAddressSpaceManager installs the address-space manager external
// collaborator. Defaults to an in-memory vm.FakeManager.
func WithAddressSpaceManager(m vm.Manager) Option { return func(c *config) { c.vmMgr = m } }

// WithPhysicalAllocator installs the physical frame allocator external
// collaborator. Defaults to a phys.BitmapAllocator over
// DefaultPhysicalPages pages.
func WithPhysicalAllocator(a phys.Allocator) Option { return func(c *config) { c.physAlloc = a } }

// WithReaperInterval overrides reaper.DefaultInterval.
func WithReaperInterval(ticks int64) Option { return func(c *config) { c.reaperInterval = ticks } }

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option { return func(c *config) { c.pollInterval = d } }

// New boots a Kernel: it builds every subsystem, spawns the idle task
// (transitioned straight to HANG, since nothing else is runnable yet)
// and the reaper task, and starts the scheduler's tick-poll loop.
func New(opts ...Option) (*Kernel, error) {
	cfg := &config{
		logger:         hclog.NewNullLogger(),
		clock:          tick.NewWallClock(time.Millisecond),
		vmMgr:          vm.NewFakeManager(0x4000_0000),
		physAlloc:      phys.NewBitmapAllocator(0, DefaultPhysicalPages),
		reaperInterval: reaper.DefaultInterval,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	bootID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("kernel: generate boot id: %w", err)
	}
	logger := cfg.logger.With("boot_id", bootID)
	telemetry.Init("kernel")

	memReg := memory.NewRegistry(cfg.physAlloc, logger)
	rr := sched.New(cfg.clock, logger)
	taskReg := task.NewRegistry(
		task.WithHooks(rr),
		task.WithClock(cfg.clock),
		task.WithAddressSpaceManager(cfg.vmMgr),
		task.WithLogger(logger),
		task.WithDestroyHook(memReg.DestroyAllMappingsForTask),
	)

	k := &Kernel{
		BootID:       bootID,
		Logger:       logger,
		Clock:        cfg.clock,
		Tasks:        taskReg,
		Memory:       memReg,
		Sched:        rr,
		pollInterval: cfg.pollInterval,
	}

	if err := k.bootIdleTask(taskReg); err != nil {
		return nil, err
	}
	if err := k.bootReaperTask(taskReg, cfg.reaperInterval, logger); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	k.cancelPoll = cancel
	go rr.Run(ctx, taskReg, k.pollInterval)

	logger.Info("kernel booted", "idle_task", k.idle.ID(), "reaper_task", k.reaper.ID())
	return k, nil
}

func (k *Kernel) bootIdleTask(reg *task.Registry) error {
	idleEntry := func(self *task.Task) {
		for !self.IsCanceled() {
			time.Sleep(time.Millisecond)
		}
	}
	idleTask, err := reg.Spawn(-1, "idle", idleEntry, nil, false)
	if err != nil {
		return fmt.Errorf("kernel: spawn idle task: %w", err)
	}
	if err := reg.Go(idleTask, true); err != nil {
		return fmt.Errorf("kernel: dispatch idle task: %w", err)
	}
	reg.SetHang(idleTask)
	k.idle = idleTask
	return nil
}

func (k *Kernel) bootReaperTask(reg *task.Registry, interval int64, logger hclog.Logger) error {
	rp := reaper.New(reg, reaper.WithInterval(interval), reaper.WithLogger(logger))
	reaperTask, err := reg.Spawn(-1, "reaper", rp.Entry, nil, false)
	if err != nil {
		return fmt.Errorf("kernel: spawn reaper task: %w", err)
	}
	if err := reg.Go(reaperTask, false); err != nil {
		return fmt.Errorf("kernel: dispatch reaper task: %w", err)
	}
	k.reaper = reaperTask
	return nil
}

// IdleTaskID returns the id of the kernel's idle task.
func (k *Kernel) IdleTaskID() int64 { return k.idle.ID() }

// ReaperTaskID returns the id of the kernel's reaper task.
func (k *Kernel) ReaperTaskID() int64 { return k.reaper.ID() }

// Shutdown stops the scheduler's poll loop and cancels the idle and
// reaper tasks. It does not wait for the reaper to sweep them; build a
// reaper.Reaper over k.Tasks and call its Sweep if a synchronous sweep
// is needed.
func (k *Kernel) Shutdown() {
	if k.cancelPoll != nil {
		k.cancelPoll()
	}
	k.Tasks.Cancel(k.idle, 0)
	k.Tasks.Cancel(k.reaper, 0)
}
