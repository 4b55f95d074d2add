// Package migration keeps a single network owner per ownable entity and migrates it between observers
package migration

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/entity"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
	"github.com/xiaonanln/gostream/engine/opmon"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotOwnable is returned when setting the owner of an entity that cannot have one
	ErrNotOwnable = errors.New("entity is not ownable")
	// ErrNotObserver is returned when the new owner does not stream the entity
	ErrNotObserver = errors.New("player does not stream the entity")
	// ErrInvalidPlayer is returned when the new owner is not a live connected player
	ErrInvalidPlayer = errors.New("invalid player")
)

// Handler is notified of every owner change on the main routine; old and new may be nil
type Handler interface {
	OnNetOwnerChange(ent, oldOwner, newOwner *entity.Object)
}

// Options are the migration knobs
type Options struct {
	// Distance bounds automatic owners; <= 0 means unbounded
	Distance    entity.Coord
	ThreadCount int
}

type decision struct {
	ent   *entity.Object
	owner *entity.Object
}

// Manager assigns and migrates net owners
type Manager struct {
	registry *entity.Registry
	handler  Handler
	opts     Options
}

// NewManager creates a migration manager
func NewManager(registry *entity.Registry, handler Handler, opts Options) *Manager {
	if opts.ThreadCount < 1 {
		opts.ThreadCount = 1
	}
	return &Manager{
		registry: registry,
		handler:  handler,
		opts:     opts,
	}
}

// Options returns the migration knobs
func (m *Manager) Options() Options {
	return m.opts
}

// SetOptions replaces the migration knobs; the next pass uses them
func (m *Manager) SetOptions(opts Options) {
	if opts.ThreadCount < 1 {
		opts.ThreadCount = 1
	}
	m.opts = opts
}

// eligible returns the squared distance of player to ent if player may own ent
func (m *Manager) eligible(ent, player *entity.Object) (entity.Coord, bool) {
	if !player.IsValid() || !ent.IsObservedBy(player) {
		return 0, false
	}
	ps := player.Player()
	if ps.Disconnected() || ps.NetOwnershipDisabled() {
		return 0, false
	}
	distSq, ok := ps.StreamedDistanceSq(ent.Ref())
	if !ok {
		return 0, false
	}
	if d := m.opts.Distance; d > 0 && distSq > d*d {
		return 0, false
	}
	return distSq, true
}

// pick returns the observer closest to ent, ties to the lower id, skipping exclude
func (m *Manager) pick(ent, exclude *entity.Object) *entity.Object {
	var best *entity.Object
	var bestDistSq entity.Coord
	for _, p := range ent.Observers() {
		if p == exclude {
			continue
		}
		distSq, ok := m.eligible(ent, p)
		if !ok {
			continue
		}
		if best == nil || distSq < bestDistSq || (distSq == bestDistSq && p.ID() < best.ID()) {
			best, bestDistSq = p, distSq
		}
	}
	return best
}

// desired returns the owner ent should have after a migration pass
func (m *Manager) desired(ent *entity.Object) *entity.Object {
	if cur := ent.NetOwner(); cur != nil {
		if _, ok := m.eligible(ent, cur); ok {
			return cur
		}
	}
	return m.pick(ent, nil)
}

func (m *Manager) assign(ent, owner *entity.Object, disableMigration bool) {
	old := ent.AssignNetOwner(owner, disableMigration)
	if old == owner {
		return
	}
	if consts.DEBUG_MIGRATION {
		gwlog.Debugf("migration: %s owner %s -> %s", ent, old, owner)
	}
	if m.handler != nil {
		gwutils.RunPanicless(func() {
			m.handler.OnNetOwnerChange(ent, old, owner)
		})
	}
}

// SetNetOwner makes player the owner of ent; the player must stream the entity
func (m *Manager) SetNetOwner(ent, player *entity.Object, disableMigration bool) error {
	if !ent.IsValid() || !ent.Kind().IsOwnable() {
		return errors.Wrapf(ErrNotOwnable, "set net owner of %s", ent)
	}
	if player == nil {
		m.ResetNetOwner(ent, disableMigration)
		return nil
	}
	if !player.IsValid() || player.Kind() != entity.KindPlayer || player.Player().Disconnected() {
		return errors.Wrapf(ErrInvalidPlayer, "set net owner of %s to %s", ent, player)
	}
	if !ent.IsObservedBy(player) {
		return errors.Wrapf(ErrNotObserver, "set net owner of %s to %s", ent, player)
	}
	m.assign(ent, player, disableMigration)
	return nil
}

// ResetNetOwner clears the owner of ent; unless migration is disabled a new owner is picked right away
func (m *Manager) ResetNetOwner(ent *entity.Object, disableMigration bool) {
	if !ent.IsValid() || !ent.Kind().IsOwnable() {
		return
	}
	var owner *entity.Object
	if !disableMigration {
		owner = m.pick(ent, nil)
	}
	m.assign(ent, owner, disableMigration)
}

// OnStreamIn gives an unowned entity to its new observer
func (m *Manager) OnStreamIn(player, ent *entity.Object) {
	if !ent.Kind().IsOwnable() || ent.MigrationDisabled() || ent.NetOwner() != nil {
		return
	}
	if _, ok := m.eligible(ent, player); ok {
		m.assign(ent, player, false)
	}
}

// OnStreamOut migrates ent away from an owner that stopped streaming it
func (m *Manager) OnStreamOut(player, ent *entity.Object) {
	if !ent.IsValid() || !ent.Kind().IsOwnable() || !ent.IsOwnedBy(player) {
		return
	}
	m.release(ent, player)
}

func (m *Manager) release(ent, player *entity.Object) {
	if ent.MigrationDisabled() {
		// a pinned owner that is gone leaves the entity unowned
		m.assign(ent, nil, true)
		return
	}
	m.assign(ent, m.pick(ent, player), false)
}

// HandleDestroyed migrates every entity owned by a destroyed player.
// Must run while the observer sets are still intact.
func (m *Manager) HandleDestroyed(obj *entity.Object) {
	if obj.Kind() != entity.KindPlayer {
		return
	}
	for _, ref := range obj.Player().StreamedRefs() {
		ent := m.registry.GetRef(ref)
		if ent == nil || !ent.Kind().IsOwnable() || ent.Entity() == nil {
			continue
		}
		if ent.IsOwnedBy(obj) {
			m.release(ent, obj)
		}
	}
}

// Tick runs one migration pass: workers partitioned by entity id decide owners, the calling routine applies them in registry order
func (m *Manager) Tick(ctx context.Context) error {
	op := opmon.StartOperation("migration.Tick")
	defer op.Finish(consts.TICK_WARN_THRESHOLD)

	var ents []*entity.Object
	for _, k := range entity.AllKinds {
		if !k.IsOwnable() {
			continue
		}
		m.registry.ForEach(k, func(o *entity.Object) bool {
			if !o.MigrationDisabled() {
				ents = append(ents, o)
			}
			return true
		})
	}
	if len(ents) == 0 {
		return nil
	}

	decisions := make([]decision, len(ents))
	threads := m.opts.ThreadCount
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		w := w
		g.Go(func() error {
			for i, ent := range ents {
				if int(ent.ID())%threads != w {
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				decisions[i] = decision{ent: ent, owner: m.desired(ent)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "migration pass")
	}

	for _, d := range decisions {
		// a handler earlier in this pass may have changed the world
		if !d.ent.IsValid() || d.ent.MigrationDisabled() {
			continue
		}
		if d.owner != nil && !d.owner.IsValid() {
			continue
		}
		if d.ent.NetOwner() != d.owner {
			m.assign(d.ent, d.owner, false)
		}
	}
	return nil
}
