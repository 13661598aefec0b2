// Package scene holds the authoritative in-memory copy of the scenes that are
// being edited and writes every change through to the persistence gateway.
package scene

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// ErrClosed is returned by Replace once the store is closed.
var ErrClosed = errors.New("scene store closed")

type entry struct {
	session *models.Session
	refs    int
}

// snapshot is the newest unsaved scene of one session plus the callers
// waiting to learn how writing it went.
type snapshot struct {
	scene   models.SceneData
	waiters []chan error
}

// Stats describes the state of the background writer.
type Stats struct {
	Pending   int64  `json:"pending"`
	Failed    int64  `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// Store caches sessions that have joined connections and applies mutations
// to them. Persistence is best effort: one writer goroutine saves the newest
// snapshot of each changed session in the order sessions changed, and a
// failed write never rolls back the live copy.
type Store struct {
	gateway storage.SessionStore

	mu    sync.Mutex
	cache map[string]*entry

	// Writer state, guarded by wmu. Lock order is mu before wmu.
	wmu      sync.Mutex
	idle     *sync.Cond
	queue    []string             // session IDs in first-change order
	latest   map[string]*snapshot // unsaved snapshot per queued session
	inflight *snapshot            // being written right now
	flightID string
	closed   bool
	done     chan struct{}

	failed  atomic.Int64
	lastErr atomic.Value // string
}

// NewStore starts the writer goroutine.
func NewStore(gateway storage.SessionStore) *Store {
	s := &Store{
		gateway: gateway,
		cache:   make(map[string]*entry),
		latest:  make(map[string]*snapshot),
		done:    make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.wmu)
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for {
		s.wmu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.idle.Wait()
		}
		if len(s.queue) == 0 {
			s.wmu.Unlock()
			return
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		snap := s.latest[id]
		delete(s.latest, id)
		s.inflight, s.flightID = snap, id
		s.wmu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.gateway.UpdateSceneData(ctx, id, snap.scene)
		cancel()
		if err != nil {
			s.failed.Add(1)
			s.lastErr.Store(err.Error())
			log.Error().Err(err).Str("module", "scene").Str("session", id).Msg("failed to persist scene")
		}
		for _, w := range snap.waiters {
			w <- err
		}

		s.wmu.Lock()
		s.inflight, s.flightID = nil, ""
		s.idle.Broadcast()
		s.wmu.Unlock()
	}
}

// enqueue records scene as the newest unsaved state of a session. An older
// queued snapshot is replaced and its waiters move to the new one. It never
// blocks on the gateway.
func (s *Store) enqueue(sessionID string, scene models.SceneData, waiter chan error) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return false
	}
	snap, ok := s.latest[sessionID]
	if !ok {
		snap = &snapshot{}
		s.latest[sessionID] = snap
		s.queue = append(s.queue, sessionID)
	}
	snap.scene = scene
	if waiter != nil {
		snap.waiters = append(snap.waiters, waiter)
	}
	s.idle.Broadcast()
	return true
}

func (s *Store) persist(sessionID string, scene models.SceneData) {
	if !s.enqueue(sessionID, scene, nil) {
		log.Warn().Str("module", "scene").Str("session", sessionID).Msg("store closed, write skipped")
	}
}

// unsaved returns the newest scene of a session that the gateway may not
// hold yet.
func (s *Store) unsaved(sessionID string) (models.SceneData, bool) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if snap, ok := s.latest[sessionID]; ok {
		return snap.scene, true
	}
	if s.inflight != nil && s.flightID == sessionID {
		return s.inflight.scene, true
	}
	return nil, false
}

// load returns the working copy of a session: the cached one if the session
// is acquired, otherwise the stored one with any unsaved scene laid over it.
// Callers hold s.mu.
func (s *Store) load(ctx context.Context, sessionID string) (*models.Session, bool) {
	if e, ok := s.cache[sessionID]; ok {
		return e.session, true
	}
	session, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Str("module", "scene").Str("session", sessionID).Msg("failed to load session")
		}
		return nil, false
	}
	if scene, ok := s.unsaved(sessionID); ok {
		session.SceneData = scene.Clone()
	}
	if session.SceneData == nil {
		session.SceneData = models.SceneData{}
	}
	return session, true
}

// Get returns a copy of the session, or false if it does not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.load(ctx, sessionID)
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// ApplyPatch merges patch into an existing object. A missing session or
// object makes it a no-op; patches never create objects.
func (s *Store) ApplyPatch(ctx context.Context, sessionID, objectID string, patch models.ObjectPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.load(ctx, sessionID)
	if !ok {
		return false
	}
	obj, ok := session.SceneData[objectID]
	if !ok {
		log.Debug().Str("module", "scene").Str("session", sessionID).Str("object", objectID).Msg("patch for unknown object ignored")
		return false
	}
	patch.Apply(&obj)
	session.SceneData[objectID] = obj
	s.persist(sessionID, session.SceneData.Clone())
	return true
}

// Insert adds or overwrites an object.
func (s *Store) Insert(ctx context.Context, sessionID string, obj models.SceneObject) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.load(ctx, sessionID)
	if !ok {
		return false
	}
	session.SceneData[obj.ID] = obj
	s.persist(sessionID, session.SceneData.Clone())
	return true
}

// Remove deletes an object if present.
func (s *Store) Remove(ctx context.Context, sessionID, objectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.load(ctx, sessionID)
	if !ok {
		return false
	}
	if _, ok := session.SceneData[objectID]; !ok {
		return false
	}
	delete(session.SceneData, objectID)
	s.persist(sessionID, session.SceneData.Clone())
	return true
}

// Replace swaps the whole scene of a session. The write goes through the
// writer queue behind any earlier change of the session, and Replace waits
// for it so the caller can report the outcome.
func (s *Store) Replace(ctx context.Context, sessionID string, scene models.SceneData) error {
	if scene == nil {
		scene = models.SceneData{}
	}
	reply := make(chan error, 1)

	s.mu.Lock()
	e, cached := s.cache[sessionID]
	if !cached {
		if _, err := s.gateway.GetSession(ctx, sessionID); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if !s.enqueue(sessionID, scene.Clone(), reply) {
		s.mu.Unlock()
		return ErrClosed
	}
	if cached {
		e.session.SceneData = scene.Clone()
	}
	s.mu.Unlock()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttachModel records a custom model on the cached copy of a session so
// later joiners see it. Sessions that are not cached are left alone.
func (s *Store) AttachModel(m models.CustomModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[m.SessionID]; ok {
		e.session.CustomModels = append(e.session.CustomModels, m)
	}
}

// Acquire pins a session in the cache for one more connection.
func (s *Store) Acquire(ctx context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[sessionID]; ok {
		e.refs++
		return true
	}
	session, ok := s.load(ctx, sessionID)
	if !ok {
		return false
	}
	s.cache[sessionID] = &entry{session: session, refs: 1}
	log.Debug().Str("module", "scene").Str("session", sessionID).Msg("session cached")
	return true
}

// Release undoes one Acquire and drops the cache entry when nobody holds it.
func (s *Store) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[sessionID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.cache, sessionID)
		log.Debug().Str("module", "scene").Str("session", sessionID).Msg("session evicted")
	}
}

// Forget drops a session from the cache regardless of holders, used when the
// session is deleted.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, sessionID)
}

// Cached reports whether a session is currently held in memory.
func (s *Store) Cached(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[sessionID]
	return ok
}

// Sync blocks until every change made so far has been attempted.
func (s *Store) Sync() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for len(s.queue) > 0 || s.inflight != nil {
		s.idle.Wait()
	}
}

func (s *Store) Stats() Stats {
	s.wmu.Lock()
	pending := int64(len(s.queue))
	if s.inflight != nil {
		pending++
	}
	s.wmu.Unlock()

	st := Stats{Pending: pending, Failed: s.failed.Load()}
	if v, ok := s.lastErr.Load().(string); ok {
		st.LastError = v
	}
	return st
}

// Close writes what is still queued and stops the writer. Mutations after
// Close still update memory but are no longer persisted.
func (s *Store) Close() {
	s.wmu.Lock()
	s.closed = true
	s.idle.Broadcast()
	s.wmu.Unlock()
	<-s.done
}
