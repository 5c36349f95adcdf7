package memory

import (
	"sort"
	"sync"
	"time"

	"study-pipeline-be/internal/repository/contract"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// sessionEntry serializes all mutations of one session. Work on different
// sessions never contends on the same lock.
type sessionEntry struct {
	mu      sync.RWMutex
	session store.Session
}

// SessionRepository is the process-local session registry. Sessions never
// expire and are lost on restart.
type SessionRepository struct {
	cache *cache.Cache
}

var _ contract.ISessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	// No expiration and no janitor: sessions live for the process lifetime
	c := cache.New(cache.NoExpiration, 0)
	return &SessionRepository{
		cache: c,
	}
}

// Create registers an empty session and returns a snapshot of it.
func (r *SessionRepository) Create() store.Session {
	entry := &sessionEntry{
		session: store.Session{
			ID:        uuid.NewString(),
			Sources:   []store.Source{},
			Outputs:   []store.Output{},
			CreatedAt: time.Now(),
		},
	}
	r.cache.Set(entry.session.ID, entry, cache.NoExpiration)
	return snapshot(&entry.session)
}

func (r *SessionRepository) entry(sessionID string) (*sessionEntry, error) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*sessionEntry), nil
	}
	return nil, apperror.NotFound("session %s not found", sessionID)
}

// Get returns a copy of the session; callers never hold references into the store.
func (r *SessionRepository) Get(sessionID string) (store.Session, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return store.Session{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot(&e.session), nil
}

// GetSource returns a copy of one source of the session.
func (r *SessionRepository) GetSource(sessionID, sourceID string) (store.Source, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return store.Source{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.session.FindSource(sourceID)
	if !ok {
		return store.Source{}, apperror.NotFound("source %s not found in session %s", sourceID, sessionID)
	}
	return src, nil
}

// GetOutput returns a copy of one output of the session.
func (r *SessionRepository) GetOutput(sessionID, outputID string) (store.Output, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return store.Output{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out, ok := e.session.FindOutput(outputID)
	if !ok {
		return store.Output{}, apperror.NotFound("output %s not found in session %s", outputID, sessionID)
	}
	return out, nil
}

// AddSources appends sources, assigning ids to those without one.
func (r *SessionRepository) AddSources(sessionID string, sources []store.Source) ([]store.Source, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	added := make([]store.Source, 0, len(sources))
	for _, src := range sources {
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		e.session.Sources = append(e.session.Sources, src)
		added = append(added, src)
	}
	return added, nil
}

// UpdateSource applies fn to the stored source under the session lock.
// fn must not block; long-running work happens before the call.
func (r *SessionRepository) UpdateSource(sessionID, sourceID string, fn func(*store.Source) error) (store.Source, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return store.Source{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.session.Sources {
		if e.session.Sources[i].ID != sourceID {
			continue
		}
		updated := e.session.Sources[i]
		if err := fn(&updated); err != nil {
			return store.Source{}, err
		}
		e.session.Sources[i] = updated
		return updated, nil
	}
	return store.Source{}, apperror.NotFound("source %s not found in session %s", sourceID, sessionID)
}

// AppendOutput appends to the session's output list. Appends are the only
// mutation of the list, so concurrent completions keep insertion order.
func (r *SessionRepository) AppendOutput(sessionID string, output store.Output) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Outputs = append(e.session.Outputs, detachOutput(output))
	return nil
}

// List returns every session, oldest first. Debug only.
func (r *SessionRepository) List() []store.Session {
	items := r.cache.Items()
	sessions := make([]store.Session, 0, len(items))
	for _, item := range items {
		e := item.Object.(*sessionEntry)
		e.mu.RLock()
		sessions = append(sessions, snapshot(&e.session))
		e.mu.RUnlock()
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func snapshot(s *store.Session) store.Session {
	out := *s
	out.Sources = make([]store.Source, len(s.Sources))
	copy(out.Sources, s.Sources)
	for i, src := range out.Sources {
		if src.OptimizationStats != nil {
			stats := *src.OptimizationStats
			stats.KeyTopics = append([]string(nil), src.OptimizationStats.KeyTopics...)
			out.Sources[i].OptimizationStats = &stats
		}
	}
	out.Outputs = make([]store.Output, len(s.Outputs))
	for i, o := range s.Outputs {
		out.Outputs[i] = detachOutput(o)
	}
	return out
}

func detachOutput(o store.Output) store.Output {
	if o.Count != nil {
		n := *o.Count
		o.Count = &n
	}
	return o
}
