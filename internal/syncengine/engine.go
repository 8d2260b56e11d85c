// Package syncengine is the single data-access contract used by business
// and UI code. Reads go to the remote database first and fall back to the
// local cache; writes always land locally and are pushed to the remote when
// possible, otherwise marked pending and replayed on reconnect.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/remote"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
)

// Connectivity is the engine's view of the connectivity monitor.
type Connectivity interface {
	IsOnline() bool
	MarkOffline(ctx context.Context, cause error)
}

type Options struct {
	// CloudOnly makes remote failures surface as errors instead of
	// falling back to the local cache.
	CloudOnly bool
	// Replay lists the collections swept by SyncPendingData. Defaults to
	// models.ReplayCollections.
	Replay []models.Collection
	Now    func() time.Time
}

type Engine struct {
	local    localstore.Store
	remote   remote.Store
	conn     Connectivity
	sessions session.Provider
	log      logging.Logger
	opts     Options

	sweepMu *sync.Mutex
	stamps  *stampClock
}

func New(local localstore.Store, rem remote.Store, conn Connectivity, sessions session.Provider, log logging.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Replay == nil {
		opts.Replay = models.ReplayCollections()
	}
	if sessions == nil {
		sessions = session.Static{}
	}
	return &Engine{
		local:    local,
		remote:   rem,
		conn:     conn,
		sessions: sessions,
		log:      log.With("component", "syncengine"),
		opts:     opts,
		sweepMu:  &sync.Mutex{},
		stamps:   &stampClock{},
	}
}

// ForSession returns a view of e bound to s. Views share stores,
// connectivity, the replay lock and the creation clock.
func (e *Engine) ForSession(s *session.Session) *Engine {
	view := *e
	view.sessions = session.Static{S: s}
	return &view
}

// Init checks that the local cache is usable and reports its schema version.
func (e *Engine) Init(ctx context.Context) error {
	v, err := e.local.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: schema version: %v", common.ErrStorage, err)
	}
	e.log.Info(ctx, "sync engine ready",
		"schema_version", v, "cloud_only", e.opts.CloudOnly, "online", e.conn.IsOnline(), "tenant", e.Tenant())
	return nil
}

// Tenant is the store id every query of this engine is scoped to.
func (e *Engine) Tenant() string {
	return session.TenantOf(e.sessions.Current())
}

func (e *Engine) CloudOnly() bool { return e.opts.CloudOnly }

func (e *Engine) scoped() *remote.Scoped {
	return remote.Scope(e.remote, e.Tenant())
}

func (e *Engine) now() string {
	return models.FormatTime(e.opts.Now())
}

// created returns the _createdAt stamp of a new record. Stamps issued by
// one node strictly increase, so "newest first" stays well defined for
// records created within the same millisecond.
func (e *Engine) created() string {
	return models.FormatTime(e.stamps.next(e.opts.Now()))
}

type stampClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *stampClock) next(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Millisecond)
	}
	c.last = now
	return now
}

// owns reports whether doc may be seen and changed by the current tenant.
// Records without an owner and untenanted collections are shared.
func (e *Engine) owns(coll models.Collection, doc models.Document) bool {
	return !coll.Tenanted() || doc.VisibleTo(e.Tenant())
}

func notFound(coll models.Collection, id string) error {
	return fmt.Errorf("%w: %s/%s", common.ErrNotFound, coll, id)
}

// remoteFailed records a failed remote call. Connectivity failures flip the
// monitor to offline.
func (e *Engine) remoteFailed(ctx context.Context, op string, coll models.Collection, err error) {
	e.log.Warn(ctx, "remote "+op+" failed", "collection", coll, "error", err)
	if errors.Is(err, common.ErrRemoteUnavailable) {
		e.conn.MarkOffline(ctx, err)
	}
}

func checkCollection(coll models.Collection) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: unknown collection %q", common.ErrValidation, coll)
	}
	return nil
}
