package registry

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/stellarlinkco/haiemet/internal/logger"
)

// Store persists a full registry document.
type Store interface {
	// Load returns (nil, nil) when nothing has been stored yet.
	Load() (*Document, error)
	Save(doc *Document) error
	Close() error
}

type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRand overrides the generator used by SyncQuantum; it must return a
// value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(r *Registry) { r.intN = intN }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry owns every UserRecord. All operations run read-modify-write-persist
// under one mutex, so concurrent calls for the same id never lose updates.
type Registry struct {
	mu    sync.Mutex
	store Store
	log   *logger.Logger
	now   func() time.Time
	intN  func(n int) int

	users         map[string]*UserRecord
	totalMessages int64
	failedWrites  int64
	system        SystemState
}

// Open builds a registry from whatever the store holds. Read failures are
// logged and leave the registry empty.
func Open(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		log:    logger.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		intN:   rand.IntN,
		users:  make(map[string]*UserRecord),
		system: defaultSystemState(),
	}
	for _, opt := range opts {
		opt(r)
	}

	doc, err := store.Load()
	switch {
	case err != nil:
		r.log.Error("load registry failed, starting empty", "error", err)
	case doc == nil:
		r.log.Info("no stored registry, starting empty")
	default:
		r.restore(doc)
		r.log.Info("registry loaded", "users", len(r.users), "messages", r.totalMessages)
	}
	return r
}

// restore rebuilds in-memory state from a document, recomputing derived
// fields so a hand-edited file cannot break the level and mood invariants.
func (r *Registry) restore(doc *Document) {
	for id, rec := range doc.Users {
		rec := rec
		if rec.ID == "" {
			rec.ID = id
		}
		rec.Level = LevelFor(rec.Points)
		rec.Mood = MoodFor(rec.EmotionScore)
		r.users[id] = &rec
	}
	r.totalMessages = doc.TotalMessages
	if doc.System != (SystemState{}) {
		r.system = doc.System
	}
}

// Close flushes the registry one last time and releases the store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var saveErr error
	if err := r.store.Save(r.documentLocked()); err != nil {
		saveErr = fmt.Errorf("final flush: %w", err)
	}
	if err := r.store.Close(); err != nil && saveErr == nil {
		return fmt.Errorf("close store: %w", err)
	}
	return saveErr
}

// Register creates a record for id. It returns false when id is already known.
func (r *Registry) Register(id, handle, displayName string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; ok {
		return false
	}
	now := r.now()
	r.users[id] = &UserRecord{
		ID:          id,
		Handle:      handle,
		DisplayName: displayName,
		JoinedAt:    now,
		LastSeenAt:  now,
		Level:       LevelFor(0),
		Mood:        MoodFor(0),
	}
	r.persistLocked()
	r.log.Info("user registered", "user", id, "handle", handle)
	return true
}

// Touch records one tracked interaction for id.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("touch %s: %w", id, ErrUnknownUser)
	}
	u.InteractionCount++
	u.LastSeenAt = r.now()
	r.totalMessages++
	r.persistLocked()
	return nil
}

// AddPoints accrues amount and recomputes the level.
func (r *Registry) AddPoints(id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("add %d points to %s: %w", amount, id, ErrNegativeAmount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("add points to %s: %w", id, ErrUnknownUser)
	}
	u.Points += amount
	u.Level = LevelFor(u.Points)
	r.persistLocked()
	return nil
}

// AddEmotion shifts the emotion score by delta and recomputes the mood.
func (r *Registry) AddEmotion(id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("add emotion to %s: %w", id, ErrUnknownUser)
	}
	u.EmotionScore += delta
	u.Mood = MoodFor(u.EmotionScore)
	r.persistLocked()
	return nil
}

// Get returns a copy of the record and whether it exists.
func (r *Registry) Get(id string) (UserRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return UserRecord{}, false
	}
	return *u, true
}

// Users returns copies of every record ordered by id.
func (r *Registry) Users() []UserRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UserRecord, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		TotalUsers:    len(r.users),
		TotalMessages: r.totalMessages,
		FailedWrites:  r.failedWrites,
		System:        r.system,
	}
}

// IncrementCoreBeat bumps the heartbeat counter shown by /status.
func (r *Registry) IncrementCoreBeat() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.system.CoreBeats++
	r.persistLocked()
	return r.system.CoreBeats
}

// SyncQuantum adds a random amount in [100, 1000] to the sync counter.
func (r *Registry) SyncQuantum() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.system.QuantumSync += int64(minQuantumSync + r.intN(maxQuantumSync-minQuantumSync+1))
	r.persistLocked()
	return r.system.QuantumSync
}

// ActivateCosmicPower boosts both power counters and energizes the system.
func (r *Registry) ActivateCosmicPower() SystemState {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.system.LightPower += powerBoost
	r.system.DarkPower += powerBoost
	r.system.Mood = SystemMoodEnergized
	r.persistLocked()
	return r.system
}

// Document returns a deep copy of the current state in persisted form.
func (r *Registry) Document() *Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.documentLocked()
}

func (r *Registry) documentLocked() *Document {
	users := make(map[string]UserRecord, len(r.users))
	for id, u := range r.users {
		users[id] = *u
	}
	return &Document{
		Version:       documentVersion,
		SavedAt:       r.now(),
		TotalMessages: r.totalMessages,
		System:        r.system,
		Users:         users,
	}
}

// persistLocked writes the whole registry. Failures are logged and counted;
// memory stays authoritative.
func (r *Registry) persistLocked() {
	if err := r.store.Save(r.documentLocked()); err != nil {
		r.failedWrites++
		r.log.Error("save registry failed", "error", err, "failed_writes", r.failedWrites)
	}
}
