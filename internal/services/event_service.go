package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"acara/internal/apperrors"
	"acara/internal/models"
	"acara/internal/repositories"
	"acara/internal/storage"
	"acara/pkg/logger"
)

// dateLayouts are the accepted event date formats, tried in order.
// Dates are stored verbatim as submitted once one of these parses.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// NotificationPublisher publishes lifecycle notifications. Satisfied
// by *rabbitmq.Client; nil disables publishing.
type NotificationPublisher interface {
	Publish(routingKey string, body []byte) error
}

// EventInput carries the mutable event fields from the API layer.
type EventInput struct {
	Title       string
	Description string
	Address     string
	Date        string
}

// EventService handles business logic for events: validation,
// ownership checks, image reference lifecycle and notifications.
type EventService struct {
	eventRepo repositories.EventRepository
	images    storage.ImageStore
	publisher NotificationPublisher
}

// NewEventService creates a new EventService. publisher may be nil.
func NewEventService(eventRepo repositories.EventRepository, images storage.ImageStore, publisher NotificationPublisher) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		images:    images,
		publisher: publisher,
	}
}

// GetAll retrieves every event, newest first.
func (s *EventService) GetAll() ([]models.Event, error) {
	return s.eventRepo.GetAll()
}

// GetByID retrieves a single event.
func (s *EventService) GetByID(id uint) (*models.Event, error) {
	return s.eventRepo.GetByID(id)
}

// GetByUser retrieves the events owned by userID, newest first.
func (s *EventService) GetByUser(userID uint) ([]models.Event, error) {
	return s.eventRepo.GetByUser(userID)
}

// Search finds events whose title, description or address contains
// term, case-insensitively. An empty term returns everything.
func (s *EventService) Search(term string) ([]models.Event, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.eventRepo.GetAll()
	}
	return s.eventRepo.Search(term)
}

// Create validates the input, stores the optional image and inserts
// the event owned by ownerID. Either the full entity is persisted or
// nothing is: an insert failure removes the just-stored image.
func (s *EventService) Create(ctx context.Context, input EventInput, up *storage.Upload, ownerID uint) (*models.Event, error) {
	input, err := validateEventInput(input)
	if err != nil {
		return nil, err
	}

	var ref string
	if up != nil {
		if ref, err = s.images.Save(ctx, *up); err != nil {
			return nil, err
		}
	}

	event := &models.Event{
		Title:       input.Title,
		Description: input.Description,
		Address:     input.Address,
		Date:        input.Date,
		Image:       ref,
		UserID:      ownerID,
	}

	if err := s.eventRepo.Create(event); err != nil {
		if ref != "" {
			s.release(ctx, ref)
		}
		return nil, err
	}

	s.notify("event.created", event)
	return event, nil
}

// Update validates and applies changes to an event the caller owns.
// Existence is checked before ownership, so probing a nonexistent id
// yields not-found regardless of caller. Without a new upload the
// existing image reference is retained; with one, the old reference
// is released after the row is written.
func (s *EventService) Update(ctx context.Context, id uint, input EventInput, up *storage.Upload, callerID uint) (*models.Event, error) {
	event, err := s.eventRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if event.UserID != callerID {
		return nil, apperrors.ErrForbidden
	}

	input, err = validateEventInput(input)
	if err != nil {
		return nil, err
	}

	oldImage := event.Image
	if up != nil {
		ref, err := s.images.Save(ctx, *up)
		if err != nil {
			return nil, err
		}
		event.Image = ref
	}

	event.Title = input.Title
	event.Description = input.Description
	event.Address = input.Address
	event.Date = input.Date

	if err := s.eventRepo.Update(event); err != nil {
		if up != nil && event.Image != "" {
			s.release(ctx, event.Image)
		}
		return nil, err
	}

	if up != nil && oldImage != "" {
		s.release(ctx, oldImage)
	}

	s.notify("event.updated", event)
	return event, nil
}

// Delete removes an event the caller owns. The row deletion and the
// image release are independent: once the row is gone the operation
// has succeeded, whatever happens to the stored image.
func (s *EventService) Delete(ctx context.Context, id uint, callerID uint) error {
	event, err := s.eventRepo.GetByID(id)
	if err != nil {
		return err
	}
	if event.UserID != callerID {
		return apperrors.ErrForbidden
	}

	if err := s.eventRepo.Delete(id); err != nil {
		return err
	}

	if event.Image != "" {
		s.release(ctx, event.Image)
	}

	s.notify("event.deleted", event)
	return nil
}

// release drops an image reference, logging failure instead of
// surfacing it.
func (s *EventService) release(ctx context.Context, ref string) {
	if err := s.images.Release(ctx, ref); err != nil {
		log := logger.Get()
		log.Warn().Err(err).Str("image", ref).Msg("failed to release image")
	}
}

// notify publishes a lifecycle notification when a publisher is
// wired. Failures only log; the enclosing mutation already succeeded.
func (s *EventService) notify(routingKey string, event *models.Event) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"event_id": event.ID,
		"title":    event.Title,
		"date":     event.Date,
		"user_id":  event.UserID,
	})
	if err != nil {
		log := logger.Get()
		log.Warn().Err(err).Str("key", routingKey).Msg("failed to marshal notification")
		return
	}
	if err := s.publisher.Publish(routingKey, body); err != nil {
		log := logger.Get()
		log.Warn().Err(err).Str("key", routingKey).Uint("event_id", event.ID).Msg("failed to publish notification")
	}
}

// validateEventInput trims all text fields and enforces the create /
// update contract: title, description and address non-empty, date in
// one of the accepted layouts.
func validateEventInput(input EventInput) (EventInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Address = strings.TrimSpace(input.Address)
	input.Date = strings.TrimSpace(input.Date)

	switch {
	case input.Title == "":
		return input, apperrors.NewValidation("title", "is required")
	case input.Description == "":
		return input, apperrors.NewValidation("description", "is required")
	case input.Address == "":
		return input, apperrors.NewValidation("address", "is required")
	case input.Date == "":
		return input, apperrors.NewValidation("date", "is required")
	}

	if !validDate(input.Date) {
		return input, apperrors.NewValidation("date", "invalid date format")
	}
	return input, nil
}

func validDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
