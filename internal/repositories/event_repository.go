package repositories

import "acara/internal/models"

// EventRepository defines the interface for event data access.
// All multi-row reads return newest-first (descending id).
type EventRepository interface {
	Create(event *models.Event) error
	GetAll() ([]models.Event, error)
	GetByID(id uint) (*models.Event, error)
	GetByUser(userID uint) ([]models.Event, error)
	Search(term string) ([]models.Event, error)
	Update(event *models.Event) error
	Delete(id uint) error
}
