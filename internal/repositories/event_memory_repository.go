package repositories

import (
	"sort"
	"strings"
	"sync"
	"time"

	"acara/internal/apperrors"
	"acara/internal/models"
)

// MemoryEventRepository is an in-memory implementation of
// EventRepository, used when the app runs without a database
// (DB_DRIVER=memory) and in tests.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[uint]models.Event
	nextID uint
}

// NewMemoryEventRepository creates a new instance of MemoryEventRepository.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[uint]models.Event),
		nextID: 1,
	}
}

// Create adds a new event and assigns its id.
func (r *MemoryEventRepository) Create(event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = r.nextID
	r.nextID++
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events[event.ID] = *event
	return nil
}

// GetAll returns every event, newest first.
func (r *MemoryEventRepository) GetAll() ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(models.Event) bool { return true }), nil
}

// GetByID returns the event with the given id.
func (r *MemoryEventRepository) GetByID(id uint) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, apperrors.ErrEventNotFound
	}
	return &event, nil
}

// GetByUser returns the events owned by userID, newest first.
func (r *MemoryEventRepository) GetByUser(userID uint) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(e models.Event) bool { return e.UserID == userID }), nil
}

// Search matches term case-insensitively against title, description
// and address.
func (r *MemoryEventRepository) Search(term string) ([]models.Event, error) {
	needle := strings.ToLower(term)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(e models.Event) bool {
		return strings.Contains(strings.ToLower(e.Title), needle) ||
			strings.Contains(strings.ToLower(e.Description), needle) ||
			strings.Contains(strings.ToLower(e.Address), needle)
	}), nil
}

// Update replaces an existing event.
func (r *MemoryEventRepository) Update(event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; !ok {
		return apperrors.ErrEventNotFound
	}
	r.events[event.ID] = *event
	return nil
}

// Delete removes an event by its id.
func (r *MemoryEventRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[id]; !ok {
		return apperrors.ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

// collect gathers matching events sorted by descending id. Callers
// must hold at least the read lock.
func (r *MemoryEventRepository) collect(match func(models.Event) bool) []models.Event {
	result := make([]models.Event, 0, len(r.events))
	for _, e := range r.events {
		if match(e) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result
}
