// Package peerserver wires every peer-local subsystem — executor,
// cache, quota, history, scheduler, memory store, file store, owned-file
// custody, process manager, deadlock detector, memory allocator, and IPC
// — behind the single Dispatch switch a peer's rpc.Server calls for
// every accepted connection. Modeled on pkg/tracker's Dispatch: decode
// the envelope, route on type, encode the typed response.
package peerserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/allocator"
	"github.com/Snider/Fabric/pkg/cache"
	"github.com/Snider/Fabric/pkg/client"
	"github.com/Snider/Fabric/pkg/deadlock"
	"github.com/Snider/Fabric/pkg/executor"
	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/filestore"
	"github.com/Snider/Fabric/pkg/history"
	"github.com/Snider/Fabric/pkg/ipc"
	"github.com/Snider/Fabric/pkg/logging"
	"github.com/Snider/Fabric/pkg/memory"
	"github.com/Snider/Fabric/pkg/ownedfile"
	"github.com/Snider/Fabric/pkg/procmgr"
	"github.com/Snider/Fabric/pkg/quota"
	"github.com/Snider/Fabric/pkg/scheduler"
	"github.com/Snider/Fabric/pkg/wire"
)

// DeadlockResource declares one banker's-algorithm resource pool this
// peer exposes over REQUEST_RESOURCE/RELEASE_RESOURCE.
type DeadlockResource struct {
	Type       string
	TotalUnits int
}

// Config configures a Peer's subsystems. Zero values fall back to
// sensible defaults (see New).
type Config struct {
	SelfAddress string // "ip:port", used as executed_by and storage owner

	// TrackerAddress, if set, lets a non-confidential CPU_TASK be
	// dispatched to the tracker's least-loaded peer instead of always
	// running here. Left empty, every task runs locally.
	TrackerAddress string

	PublicRoot string
	OwnedRoot  string

	AllocatorTotal int

	CacheCapacity int
	CacheTTL      time.Duration

	History history.Config

	Quota quota.Limits

	TaskTimeout        time.Duration
	SchedulerAlgorithm scheduler.Algorithm

	DeadlockResources map[string]DeadlockResource
}

// Peer owns every peer-local subsystem and answers Dispatch for every
// Client<->Peer and OS-plane message kind.
type Peer struct {
	cfg    Config
	logger *logging.Logger

	registry  *executor.Registry
	resultCache *cache.Cache
	quota     *quota.Quota
	history   *history.Log
	scheduler *scheduler.Scheduler

	mem   *memory.Store
	files *filestore.Store
	owned *ownedfile.Store

	procs    *procmgr.Manager
	banker   *deadlock.Manager
	memAlloc *allocator.Allocator
	ipcMgr   *ipc.Manager

	tracker *client.Tracker // nil if cfg.TrackerAddress is unset

	mu          sync.Mutex
	registered  map[string]bool // pids already registered with banker
	nextQueueID int
	nextSemID   int
}

// New constructs a Peer. reg holds the callables CPU_TASK may invoke;
// callers register functions on it before or after New, since lookups
// happen per-request.
func New(cfg Config, reg *executor.Registry, logger *logging.Logger) (*Peer, error) {
	if logger == nil {
		logger = logging.GetGlobal()
	}
	if cfg.AllocatorTotal <= 0 {
		cfg.AllocatorTotal = 64 * 1024 * 1024
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 60 * time.Second
	}
	if cfg.SchedulerAlgorithm == "" {
		cfg.SchedulerAlgorithm = scheduler.FCFS
	}
	if cfg.DeadlockResources == nil {
		cfg.DeadlockResources = map[string]DeadlockResource{
			"CPU": {Type: "CPU", TotalUnits: 4},
			"MEM": {Type: "MEM", TotalUnits: 4},
		}
	}

	hist, err := history.New(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("peerserver: init history: %w", err)
	}

	owned := ownedfile.New(cfg.OwnedRoot)
	if err := owned.Reconstruct(); err != nil {
		return nil, fmt.Errorf("peerserver: reconstruct owned files: %w", err)
	}

	banker := deadlock.New()
	for id, res := range cfg.DeadlockResources {
		if err := banker.RegisterResource(id, res.Type, res.TotalUnits); err != nil {
			return nil, fmt.Errorf("peerserver: register resource %q: %w", id, err)
		}
	}

	p := &Peer{
		cfg:         cfg,
		logger:      logger.WithComponent(logging.ComponentPeer),
		registry:    reg,
		resultCache: cache.New(cfg.CacheCapacity, cfg.CacheTTL),
		quota:       quota.New(cfg.Quota),
		history:     hist,
		scheduler:   scheduler.New(cfg.SchedulerAlgorithm, logger),
		mem:         memory.New(),
		owned:       owned,
		procs:       procmgr.New(),
		banker:      banker,
		memAlloc:    allocator.New(cfg.AllocatorTotal),
		ipcMgr:      ipc.NewManager(),
		registered:  make(map[string]bool),
	}
	p.files = filestore.New(cfg.PublicRoot, owned)
	if cfg.TrackerAddress != "" {
		p.tracker = client.NewTracker(cfg.TrackerAddress)
	}
	return p, nil
}

// CPULoad reports this peer's current load (§4.3.3's queue-length
// formula) for heartbeat reporting to the tracker.
func (p *Peer) CPULoad() float64 {
	return p.scheduler.QueueLoad()
}

// Close releases background resources (quota sweep goroutine, scheduler
// worker, history's SQLite connection, if any).
func (p *Peer) Close() {
	p.quota.Stop()
	p.scheduler.Close()
	p.history.Close()
}

// Dispatch decodes one request frame body, routes it to the matching
// handler, and returns the response frame body.
func (p *Peer) Dispatch(ctx context.Context, body []byte) ([]byte, error) {
	var env wire.Envelope
	if err := wire.DecodeMessage(body, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case wire.TypeCPUTask:
		return p.handleCPUTask(ctx, body)
	case wire.TypeCancelTask:
		return p.handleCancelTask(body)
	case wire.TypeBatchTask:
		return p.handleBatchTask(ctx, body)
	case wire.TypeTaskHistory:
		return p.handleTaskHistory(body)
	case wire.TypeSetMem, wire.TypeSetMemRemote:
		return p.handleSetMem(body)
	case wire.TypeGetMem, wire.TypeGetMemRemote:
		return p.handleGetMem(body)
	case wire.TypePutFile:
		return p.handlePutFile(body)
	case wire.TypeGetFile:
		return p.handleGetFile(body)
	case wire.TypeUploadToPeer:
		return p.handleUploadToPeer(body)
	case wire.TypeGetOwnedFile:
		return p.handleGetOwnedFile(body)
	case wire.TypeCreateProcess:
		return p.handleCreateProcess(body)
	case wire.TypeTerminateProcess:
		return p.handleTerminateProcess(body)
	case wire.TypeProcessTree:
		return p.handleProcessTree(body)
	case wire.TypeCreateGroup:
		return p.handleCreateGroup(body)
	case wire.TypeKillGroup:
		return p.handleKillGroup(body)
	case wire.TypeRequestResource:
		return p.handleRequestResource(body)
	case wire.TypeReleaseResource:
		return p.handleReleaseResource(body)
	case wire.TypeDeadlockCheck:
		return p.handleDeadlockCheck()
	case wire.TypeAllocateMemory:
		return p.handleAllocateMemory(body)
	case wire.TypeDeallocateMemory:
		return p.handleDeallocateMemory(body)
	case wire.TypeCreateQueue:
		return p.handleCreateQueue(body)
	case wire.TypeSendMessage:
		return p.handleSendMessage(body)
	case wire.TypeReceiveMessage:
		return p.handleReceiveMessage(body)
	case wire.TypeCreateSemaphore:
		return p.handleCreateSemaphore(body)
	case wire.TypeSemaphoreWait:
		return p.handleSemaphoreWait(body)
	case wire.TypeSemaphoreSignal:
		return p.handleSemaphoreSignal(body)
	case wire.TypeSetScheduler:
		return p.handleSetScheduler(body)
	case wire.TypeStatus:
		return wire.EncodeMessage(wire.StatusBody{Type: wire.TypeStatus})
	default:
		return nil, ferrors.UnknownMessage(string(env.Type))
	}
}

// registerProcessForBanker lazily declares pid to the banker's allocator
// the first time it is named in a REQUEST_RESOURCE/RELEASE_RESOURCE
// call. The wire protocol carries no max_need, so the declared maximum
// defaults to each registered resource's full total — the most
// permissive bound the allocator can enforce without out-of-band input
// (documented as an open-question resolution).
func (p *Peer) registerProcessForBanker(pid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registered[pid] {
		return nil
	}
	maxNeed := make(map[string]int, len(p.cfg.DeadlockResources))
	for id, res := range p.cfg.DeadlockResources {
		maxNeed[id] = res.TotalUnits
	}
	if err := p.banker.RegisterProcess(pid, maxNeed); err != nil {
		return err
	}
	p.registered[pid] = true
	return nil
}

func (p *Peer) newQueueID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextQueueID++
	return fmt.Sprintf("Q%d", p.nextQueueID)
}

func (p *Peer) newSemaphoreID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSemID++
	return fmt.Sprintf("S%d", p.nextSemID)
}
