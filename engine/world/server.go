// Package world ties the engine together: it owns the registry, runs the periodic passes
// on the main routine, replicates state to clients and exposes the script API.
package world

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gostream/engine/colshape"
	"github.com/xiaonanln/gostream/engine/common"
	"github.com/xiaonanln/gostream/engine/config"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/event"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/migration"
	"github.com/xiaonanln/gostream/engine/opmon"
	"github.com/xiaonanln/gostream/engine/post"
	"github.com/xiaonanln/gostream/engine/rpc"
	"github.com/xiaonanln/gostream/engine/spatial"
	"github.com/xiaonanln/gostream/engine/streaming"
)

// Server is the authoritative world. Everything except Post must be called on the main routine.
type Server struct {
	cfg      *config.Config
	ctx      context.Context
	queue    *post.Queue
	registry *entity.Registry
	indexer  *spatial.Indexer

	streaming *streaming.Manager
	migration *migration.Manager
	colshapes *colshape.Engine

	events       *event.Dispatcher
	clientEvents *event.Dispatcher
	protector    *event.Protector
	rpc          *rpc.Manager
	rpcHandlers  *rpc.Handlers

	globalMeta       entity.MetaMap
	globalSyncedMeta entity.MetaMap

	sessions       map[common.ClientID]*session
	playerSessions map[entity.ObjectID]*session
	// player whose position report is being applied, not echoed back to it
	syncSource *entity.Object

	timers []*timer.Timer
}

// NewServer creates a server from cfg; a nil factory selects entity.DefaultFactory
func NewServer(cfg *config.Config, factory entity.Factory) *Server {
	s := &Server{
		cfg:              cfg,
		ctx:              context.Background(),
		queue:            post.NewQueue(),
		registry:         entity.NewRegistry(factory),
		events:           event.NewDispatcher(),
		clientEvents:     event.NewDispatcher(),
		rpc:              rpc.NewManager(cfg.RPC.Timeout),
		rpcHandlers:      rpc.NewHandlers(),
		globalMeta:       entity.MetaMap{},
		globalSyncedMeta: entity.MetaMap{},
		sessions:         map[common.ClientID]*session{},
		playerSessions:   map[entity.ObjectID]*session{},
	}
	// the index must see every change before the world reacts to it
	s.indexer = spatial.NewIndexer(s.registry, spatial.NewGrid(consts.SPATIAL_CELL_SIZE))
	rep := &replication{s}
	s.registry.AddListener(rep)

	sc := cfg.Streaming
	s.streaming = streaming.NewManager(s.registry, s.indexer.Grid(), rep, streaming.Options{
		StreamingDistance: entity.Coord(sc.StreamingDistance),
		MaxPeds:           sc.MaxStreamingPeds,
		MaxObjects:        sc.MaxStreamingObjects,
		MaxVehicles:       sc.MaxStreamingVehicles,
		ThreadCount:       sc.StreamerThreadCount,
	})
	s.streaming.SetResync(s.indexer.Resync)
	s.migration = migration.NewManager(s.registry, rep, migration.Options{
		Distance:    entity.Coord(sc.MigrationDistance),
		ThreadCount: sc.MigrationThreadCount,
	})
	s.colshapes = colshape.NewEngine(s.registry, s.indexer.Grid(), rep)

	ep := cfg.EventProtection
	s.protector = event.NewProtector(event.ProtectorOptions{
		Enabled:              ep.Enabled,
		CleanupInterval:      ep.CleanupInterval,
		MaxEventsPerInterval: ep.MaxEventsPerInterval,
		CustomEventMax:       ep.CustomEventMax,
	}, s.onClientEventSuppressed)
	return s
}

func (s *Server) String() string {
	return fmt.Sprintf("Server<%d players>", len(s.playerSessions))
}

// Registry returns the object registry
func (s *Server) Registry() *entity.Registry {
	return s.registry
}

// Config returns the configuration the server was created with
func (s *Server) Config() *config.Config {
	return s.cfg
}

// StreamingOptions returns the streaming knobs in effect
func (s *Server) StreamingOptions() streaming.Options {
	return s.streaming.Options()
}

// SetStreamingOptions changes the streaming knobs at runtime; the next streaming pass applies them
func (s *Server) SetStreamingOptions(opts streaming.Options) {
	s.streaming.SetOptions(opts)
}

// MigrationOptions returns the migration knobs in effect
func (s *Server) MigrationOptions() migration.Options {
	return s.migration.Options()
}

// SetMigrationOptions changes the migration knobs at runtime
func (s *Server) SetMigrationOptions(opts migration.Options) {
	s.migration.SetOptions(opts)
}

// Post schedules f on the main routine; safe from any goroutine
func (s *Server) Post(f func()) {
	s.queue.Post(f)
}

// Run drives the main loop until ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx
	s.startTimers()
	defer s.stopTimers()

	interval := s.cfg.Server.TickInterval
	if interval <= 0 {
		interval = consts.SERVER_TICK_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	gwlog.Infof("%s: running, tick interval %s", s, interval)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one main-loop iteration: posted callbacks, due timers, rpc timeouts, id recycling
func (s *Server) Tick() {
	op := opmon.StartOperation("world.Tick")
	s.queue.Tick()
	timer.Tick()
	s.rpc.Expire()
	// timers and rpc callbacks may have posted more
	s.queue.Tick()
	s.registry.Flush()
	op.Finish(consts.TICK_WARN_THRESHOLD)
}

func (s *Server) startTimers() {
	sc := s.cfg.Streaming
	s.addTimer(sc.StreamingTickRate, s.StreamingPass)
	s.addTimer(sc.MigrationTickRate, s.MigrationPass)
	s.addTimer(sc.ColShapeTickRate, s.ColShapePass)
	s.addTimer(s.cfg.EventProtection.CleanupInterval, s.protector.Cleanup)
}

func (s *Server) addTimer(d time.Duration, f func()) {
	if d <= 0 {
		return
	}
	s.timers = append(s.timers, timer.AddTimer(d, f))
}

func (s *Server) stopTimers() {
	for _, t := range s.timers {
		t.Cancel()
	}
	s.timers = nil
}

// StreamingPass recomputes what every player streams
func (s *Server) StreamingPass() {
	if err := s.streaming.Tick(s.ctx); err != nil && errors.Cause(err) != context.Canceled {
		gwlog.Errorf("%s: streaming pass failed: %v", s, err)
	}
}

// MigrationPass rebalances net owners
func (s *Server) MigrationPass() {
	if err := s.migration.Tick(s.ctx); err != nil && errors.Cause(err) != context.Canceled {
		gwlog.Errorf("%s: migration pass failed: %v", s, err)
	}
}

// ColShapePass evaluates every colshape and checkpoint
func (s *Server) ColShapePass() {
	s.colshapes.Tick()
}

func (s *Server) shutdown() {
	gwlog.Infof("%s: shutting down", s)
	for _, sess := range s.sortedSessions() {
		sess.client.Kick("server shutting down")
		s.Disconnect(sess.client, "server shutting down")
	}
	s.queue.Tick()
	s.registry.Flush()
}
