// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements the vault virtual machine, a multi-party
// authorization engine for treasury custody. Transactions are proposed by
// owners, gather confirmations until a quorum is reached, and move funds
// only after time-lock, rate-limit, and emergency policy checks pass.
//
// All state transitions happen deterministically within block processing;
// no background goroutines are started. Every node produces identical state
// from identical inputs.
package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"

	consensusctx "github.com/luxfi/consensus/context"
	consensuscore "github.com/luxfi/consensus/core"
	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/pubsub"
	"github.com/luxfi/utils/json"
	"github.com/luxfi/version"
	"github.com/luxfi/warp"

	"github.com/luxfi/vault/config"
	"github.com/luxfi/vault/emergency"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/fees"
	vaultmetrics "github.com/luxfi/vault/metrics"
	"github.com/luxfi/vault/owners"
	"github.com/luxfi/vault/ratelimit"
	"github.com/luxfi/vault/state"
	"github.com/luxfi/vault/utils/timer/mockable"
	"github.com/luxfi/vault/wallet"
)

const (
	// Version of the vault VM
	Version = "1.0.0"

	// VMID is the unique identifier for the vault VM
	VMID = "vaultvm"
)

var (
	// ErrNotBootstrapped rejects API mutations issued before the VM has
	// finished bootstrapping.
	ErrNotBootstrapped = errors.New("vault not bootstrapped")

	errUnknownState  = errors.New("unknown state")
	errShutdown      = errors.New("VM is shutting down")
	errAlreadyPaused = errors.New("vault already paused")
	errNotPaused     = errors.New("vault not paused")

	// errPersist marks database write failures. Unlike a rejected
	// operation, a failed write aborts the whole block.
	errPersist = errors.New("state write failed")
)

// BlockResult is the deterministic outcome of processing one block.
type BlockResult struct {
	// Height of the processed block
	Height uint64

	// Timestamp the block was processed at
	Timestamp time.Time

	// Accepted and Rejected count the block's operations by outcome
	Accepted int
	Rejected int

	// Events emitted while processing the block
	Events []events.Event
}

// VM implements the vault virtual machine. The consensus engine drives it
// through ProcessBlock; the JSON-RPC API reads state and, in standalone
// deployments, issues operations through the same apply path.
//
// The embedded Config seeds genesis. After initialization the persisted
// state is authoritative: policy changes made through operations survive
// restarts regardless of configuration.
type VM struct {
	config.Config

	log  log.Logger
	lock sync.RWMutex

	consensusCtx *consensusctx.Context
	chainID      ids.ID
	self         ids.ShortID

	baseDB database.Database
	db     *versiondb.Database
	state  *state.State

	// clock follows block time, not wall time
	clock mockable.Clock

	registerer metric.Registerer
	metrics    vaultmetrics.Metrics

	pubsub   *pubsub.Server
	eventLog *events.Log
	sink     events.Sink

	treasury  *treasury
	registry  *owners.Registry
	limiter   *ratelimit.Limiter
	fees      *fees.Calculator
	emergency *emergency.Controller
	wallet    *wallet.Wallet

	height    uint64
	timestamp time.Time

	connectedPeers map[ids.NodeID]*version.Application
	appSender      warp.Sender
	toEngine       chan<- consensuscore.Message

	bootstrapped bool
	initialized  bool
	shutdown     bool
}

// Initialize sets up the VM with the provided context, database, and
// genesis data. On a fresh database the genesis document seeds the owner
// set, policy, and treasury; on restart the persisted state is reloaded
// and the genesis is ignored.
func (vm *VM) Initialize(
	ctx context.Context,
	chainCtx interface{},
	db database.Database,
	genesisBytes []byte,
	upgradeBytes []byte,
	configBytes []byte,
	toEngine chan<- consensuscore.Message,
	fxs []*consensuscore.Fx,
	appSender warp.Sender,
) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.log == nil {
		vm.log = log.NoLog{}
	}

	if consensusCtx, ok := chainCtx.(*consensusctx.Context); ok && consensusCtx != nil {
		vm.consensusCtx = consensusCtx
		vm.chainID = consensusCtx.ChainID
	}

	vm.baseDB = db
	vm.db = versiondb.New(db)
	vm.state = state.New(vm.db)
	vm.toEngine = toEngine
	vm.appSender = appSender
	vm.connectedPeers = make(map[ids.NodeID]*version.Application)

	if vm.registerer == nil {
		vm.registerer = metric.NewRegistry()
	}
	var err error
	vm.metrics, err = vaultmetrics.New(vm.registerer)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	vm.pubsub = pubsub.New(vm.log)
	vm.eventLog = events.NewLog()
	vm.sink = &vmSink{
		log:     vm.eventLog,
		pubsub:  vm.pubsub,
		metrics: vm.metrics,
	}

	if vm.Config.WalletName == "" {
		vm.Config = config.DefaultConfig()
	}
	vm.Config, err = config.ParseConfig(vm.Config, configBytes)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	initialized, err := vm.state.IsInitialized()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if !initialized {
		gen, err := ParseGenesis(genesisBytes)
		if err != nil {
			return err
		}
		if err := vm.initGenesis(gen); err != nil {
			return fmt.Errorf("failed to initialize genesis: %w", err)
		}
	}

	if err := vm.loadState(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	vm.initialized = true

	vm.log.Info("vault VM initialized",
		"version", Version,
		"name", vm.Config.WalletName,
		"owners", vm.registry.Len(),
		"threshold", vm.registry.Threshold(),
		"height", vm.height,
	)
	return nil
}

// initGenesis writes the genesis state and commits it.
func (vm *VM) initGenesis(gen *Genesis) error {
	cfg, err := gen.Config(vm.Config)
	if err != nil {
		return err
	}
	vm.Config = cfg

	self, err := gen.SelfAddress(vm.chainID)
	if err != nil {
		return err
	}

	if err := vm.state.SetOwners(cfg.Owners, cfg.RequiredConfirmations); err != nil {
		return err
	}
	if err := vm.state.SetPolicy(state.Policy{
		Name:                     cfg.WalletName,
		Address:                  self,
		DefaultTimelockSeconds:   uint64(cfg.DefaultTimelockDuration / time.Second),
		EmergencyCooldownSeconds: uint64(cfg.EmergencyCooldown / time.Second),
		HighValueThreshold:       cfg.HighValueThreshold,
		BatchValueThreshold:      cfg.BatchValueThreshold,
		ConfirmValueThreshold:    cfg.ConfirmValueThreshold,
	}); err != nil {
		return err
	}
	if err := vm.state.SetFees(cfg.FeeRateBps, 0, cfg.FeeCollector); err != nil {
		return err
	}
	if err := vm.state.SetRateLimits(cfg.DailyTxLimit, uint64(cfg.ProposalCooldown/time.Second)); err != nil {
		return err
	}
	if err := vm.state.SetEmergency(false, 0); err != nil {
		return err
	}
	if err := vm.state.SetTreasury(gen.Balance); err != nil {
		return err
	}
	if err := vm.state.SetPaused(false); err != nil {
		return err
	}

	accounts, err := gen.SeedAccounts()
	if err != nil {
		return err
	}
	for addr, account := range accounts {
		if err := vm.state.PutAccount(addr, account); err != nil {
			return err
		}
	}

	if err := vm.state.SetInitialized(); err != nil {
		return err
	}
	return vm.db.Commit()
}

// loadState rebuilds every in-memory component from the persisted state.
func (vm *VM) loadState() error {
	addrs, threshold, err := vm.state.GetOwners()
	if err != nil {
		return fmt.Errorf("failed to load owners: %w", err)
	}
	policy, err := vm.state.GetPolicy()
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	rateBps, pool, collector, err := vm.state.GetFees()
	if err != nil {
		return fmt.Errorf("failed to load fees: %w", err)
	}
	dailyLimit, cooldownSeconds, err := vm.state.GetRateLimits()
	if err != nil {
		return fmt.Errorf("failed to load rate limits: %w", err)
	}
	emergencyActive, lastAction, err := vm.state.GetEmergency()
	if err != nil {
		return fmt.Errorf("failed to load emergency state: %w", err)
	}
	paused, err := vm.state.GetPaused()
	if err != nil {
		return fmt.Errorf("failed to load pause state: %w", err)
	}
	balance, err := vm.state.GetTreasury()
	if err != nil {
		return fmt.Errorf("failed to load treasury: %w", err)
	}

	vm.self = policy.Address
	vm.treasury = newTreasury(vm.state, policy.Address, balance, paused)

	stats, err := vm.state.GetAllOwnerStats()
	if err != nil {
		return fmt.Errorf("failed to load owner stats: %w", err)
	}
	vm.registry, err = owners.Load(addrs, threshold, stats, vm.treasury)
	if err != nil {
		return fmt.Errorf("failed to load owner registry: %w", err)
	}

	vm.limiter, err = ratelimit.New(dailyLimit, time.Duration(cooldownSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to load rate limiter: %w", err)
	}
	rateStates, err := vm.state.GetAllRateStates()
	if err != nil {
		return fmt.Errorf("failed to load rate states: %w", err)
	}
	dayCounts, err := vm.state.GetAllDayCounts()
	if err != nil {
		return fmt.Errorf("failed to load day counts: %w", err)
	}
	vm.limiter.Restore(rateStates, dayCounts)

	vm.fees, err = fees.New(rateBps)
	if err != nil {
		return fmt.Errorf("failed to load fee calculator: %w", err)
	}
	vm.fees.Restore(pool)

	vm.emergency = emergency.New(threshold, time.Duration(policy.EmergencyCooldownSeconds)*time.Second)
	vm.emergency.Restore(emergencyActive, lastAction)

	txCount, err := vm.state.GetTxCount()
	if err != nil {
		return fmt.Errorf("failed to load transaction count: %w", err)
	}
	txs := make([]*wallet.Transaction, 0, txCount)
	confirmers := make(map[uint64][]ids.ShortID, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := vm.state.GetTransaction(i)
		if err != nil {
			return fmt.Errorf("failed to load transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
		signers, err := vm.state.GetConfirmers(i)
		if err != nil {
			return fmt.Errorf("failed to load confirmers of %d: %w", i, err)
		}
		if len(signers) > 0 {
			confirmers[i] = signers
		}
	}
	batchCount, err := vm.state.GetBatchCount()
	if err != nil {
		return fmt.Errorf("failed to load batch count: %w", err)
	}

	vm.wallet = wallet.New(wallet.Params{
		Log:        vm.log,
		Clock:      &vm.clock,
		Owners:     vm.registry,
		Classifier: vm.treasury,
		Limiter:    vm.limiter,
		Fees:       vm.fees,
		Emergency:  vm.emergency,
		Transferer: vm.treasury,
		Depositor:  vm.treasury,
		Pauser:     vm.treasury,
		Sink:       vm.sink,

		Self:         policy.Address,
		FeeCollector: collector,

		DefaultTimelock: time.Duration(policy.DefaultTimelockSeconds) * time.Second,

		HighValueThreshold:    policy.HighValueThreshold,
		BatchValueThreshold:   policy.BatchValueThreshold,
		ConfirmValueThreshold: policy.ConfirmValueThreshold,
	})
	vm.wallet.Restore(txs, confirmers, batchCount)

	vm.height, err = vm.state.GetHeight()
	if err != nil {
		return fmt.Errorf("failed to load height: %w", err)
	}
	timestamp, err := vm.state.GetTimestamp()
	if err != nil {
		return fmt.Errorf("failed to load timestamp: %w", err)
	}
	if timestamp > 0 {
		vm.timestamp = time.Unix(int64(timestamp), 0)
		vm.clock.Set(vm.timestamp)
	}
	return nil
}

// SetState transitions the VM between bootstrapping and normal operation.
func (vm *VM) SetState(ctx context.Context, stateNum uint32) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch consensuscore.State(stateNum) {
	case consensuscore.Bootstrapping:
		vm.log.Info("vault VM entering bootstrap state")
		vm.bootstrapped = false
		return nil

	case consensuscore.Ready:
		vm.log.Info("vault VM entering ready state")
		vm.bootstrapped = true
		return nil

	default:
		return fmt.Errorf("%w: %d", errUnknownState, stateNum)
	}
}

// IsBootstrapped reports whether the VM has finished bootstrapping.
func (vm *VM) IsBootstrapped() bool {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.initialized && vm.bootstrapped
}

// ProcessBlock applies every operation in the block and commits the result.
// Block time drives the vault's clock, so time-locks and cooldowns advance
// deterministically with consensus. A failing operation is rejected and
// logged without failing the block; a failing database write aborts it.
func (vm *VM) ProcessBlock(ctx context.Context, blockHeight uint64, blockTime time.Time, txs [][]byte) (*BlockResult, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil, errShutdown
	}
	if !vm.initialized {
		return nil, ErrNotBootstrapped
	}

	vm.clock.Set(blockTime)

	result := &BlockResult{
		Height:    blockHeight,
		Timestamp: blockTime,
	}
	mark := vm.eventLog.Len()

	for _, opBytes := range txs {
		op, err := ParseOp(opBytes)
		if err != nil {
			result.Rejected++
			vm.metrics.MarkRejected("parse")
			vm.log.Warn("failed to parse operation", "error", err)
			continue
		}

		if _, err := vm.applyOp(op); err != nil {
			if errors.Is(err, errPersist) {
				vm.abortAndReload()
				return nil, err
			}
			result.Rejected++
			vm.metrics.MarkRejected(op.Type)
			vm.log.Warn("operation rejected",
				"op", op.Type,
				"caller", op.Caller,
				"error", err,
			)
			continue
		}
		result.Accepted++
		vm.metrics.MarkAccepted(op.Type)
	}

	vm.height = blockHeight
	vm.timestamp = blockTime
	if err := vm.state.SetHeight(blockHeight); err != nil {
		vm.abortAndReload()
		return nil, persistErr(err)
	}
	if err := vm.state.SetTimestamp(vm.clock.Unix()); err != nil {
		vm.abortAndReload()
		return nil, persistErr(err)
	}
	if err := vm.db.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit block: %w", err)
	}

	result.Events = vm.eventLog.Since(mark)
	vm.metrics.MarkBlockProcessed()
	vm.observe()

	vm.log.Debug("block processed",
		"height", blockHeight,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return result, nil
}

// Shutdown stops the VM and closes the database.
func (vm *VM) Shutdown(ctx context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.log.Info("shutting down vault VM")
	vm.shutdown = true

	if vm.db != nil {
		if err := vm.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	vm.log.Info("vault VM shutdown complete")
	return nil
}

// Version returns the VM version.
func (vm *VM) Version(ctx context.Context) (string, error) {
	return Version, nil
}

// CreateHandlers returns the HTTP handlers served under the chain's URL
// prefix. The empty path carries the JSON-RPC API; /events carries the
// pubsub event feed.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	codec := json.NewCodec()

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	rpcServer.RegisterInterceptFunc(vm.metrics.InterceptRequest)
	rpcServer.RegisterAfterFunc(vm.metrics.AfterRequest)
	if err := rpcServer.RegisterService(&Service{vm: vm}, "vault"); err != nil {
		return nil, err
	}

	return map[string]http.Handler{
		"":        rpcServer,
		"/events": vm.pubsub,
	}, nil
}

// CreateStaticHandlers returns static HTTP handlers.
func (vm *VM) CreateStaticHandlers(context.Context) (map[string]http.Handler, error) {
	return nil, nil
}

// MetricsGatherer exposes the VM's metric registry so standalone
// deployments can serve it over HTTP.
func (vm *VM) MetricsGatherer() metric.Gatherer {
	if gatherer, ok := vm.registerer.(metric.Gatherer); ok {
		return gatherer
	}
	return nil
}

// HealthCheck returns the VM's health status.
func (vm *VM) HealthCheck(ctx context.Context) (interface{}, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	healthy := vm.initialized && !vm.shutdown
	emergencyActive, _, _, _ := vm.wallet.EmergencyStatus()
	return map[string]interface{}{
		"healthy":      healthy,
		"bootstrapped": vm.bootstrapped,
		"height":       vm.height,
		"transactions": vm.wallet.TransactionCount(),
		"owners":       vm.registry.Len(),
		"treasury":     vm.treasury.Balance(),
		"paused":       vm.treasury.IsPaused(),
		"emergency":    emergencyActive,
	}, nil
}

// Connected handles node connection events.
func (vm *VM) Connected(ctx context.Context, nodeID ids.NodeID, nodeVersion *version.Application) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.connectedPeers[nodeID] = nodeVersion
	vm.log.Debug("node connected", "nodeID", nodeID)
	return nil
}

// Disconnected handles node disconnection events.
func (vm *VM) Disconnected(ctx context.Context, nodeID ids.NodeID) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	delete(vm.connectedPeers, nodeID)
	vm.log.Debug("node disconnected", "nodeID", nodeID)
	return nil
}

// observe refreshes the state gauges.
func (vm *VM) observe() {
	vm.metrics.ObserveTreasury(vm.treasury.Balance())
	_, pool, _ := vm.wallet.FeeInfo()
	vm.metrics.ObserveFeePool(pool)
	vm.metrics.ObserveOwners(vm.registry.Len())
	vm.metrics.ObserveThreshold(vm.registry.Threshold())
	vm.metrics.ObserveTransactions(vm.wallet.TransactionCount())
	vm.metrics.ObservePending(vm.wallet.PendingCount())
	emergencyActive, _, _, _ := vm.wallet.EmergencyStatus()
	vm.metrics.ObserveEmergency(emergencyActive)
	vm.metrics.ObservePaused(vm.treasury.IsPaused())
}

// vmSink fans emitted events out to the audit log, the pubsub feed, and the
// alert counters. The wallet may emit while holding its lock, so the sink
// never calls back into it.
type vmSink struct {
	log     *events.Log
	pubsub  *pubsub.Server
	metrics vaultmetrics.Metrics
}

func (s *vmSink) Emit(e events.Event) {
	s.log.Emit(e)
	if e.Type == events.TypeSecurityAlert && s.metrics != nil {
		s.metrics.MarkAlert(e.Kind)
	}
	if s.pubsub != nil {
		s.pubsub.Publish(NewEventFilterer(e))
	}
}
