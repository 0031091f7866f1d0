package repositories

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"acara/internal/apperrors"
	"acara/internal/models"
)

// GORMEventRepository is a GORM implementation of EventRepository.
type GORMEventRepository struct {
	db *gorm.DB
}

// NewGORMEventRepository creates a new instance of GORMEventRepository.
func NewGORMEventRepository(db *gorm.DB) *GORMEventRepository {
	return &GORMEventRepository{db: db}
}

// Create inserts a new event row and backfills the generated id.
func (r *GORMEventRepository) Create(event *models.Event) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetAll retrieves every event, newest first.
func (r *GORMEventRepository) GetAll() ([]models.Event, error) {
	var events []models.Event
	if err := r.db.Order("id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get all events: %w", err)
	}
	return events, nil
}

// GetByID retrieves a single event by its ID.
func (r *GORMEventRepository) GetByID(id uint) (*models.Event, error) {
	var event models.Event
	if err := r.db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event by id %d: %w", id, err)
	}
	return &event, nil
}

// GetByUser retrieves the events owned by userID, newest first.
func (r *GORMEventRepository) GetByUser(userID uint) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for user %d: %w", userID, err)
	}
	return events, nil
}

// Search performs a case-insensitive substring match across title,
// description and address. LOWER + LIKE instead of ILIKE so the same
// query runs on sqlite and postgres.
func (r *GORMEventRepository) Search(term string) ([]models.Event, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	var events []models.Event
	err := r.db.
		Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(address) LIKE ?",
			pattern, pattern, pattern).
		Order("id DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	return events, nil
}

// Update saves all fields of an existing event.
func (r *GORMEventRepository) Update(event *models.Event) error {
	res := r.db.Save(event)
	if res.Error != nil {
		return fmt.Errorf("failed to update event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Save does not return ErrRecordNotFound for a missing row,
		// so RowsAffected is the signal.
		return apperrors.ErrEventNotFound
	}
	return nil
}

// Delete removes an event row by its ID.
func (r *GORMEventRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Event{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrEventNotFound
	}
	return nil
}
