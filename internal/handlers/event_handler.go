package handlers

import (
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"acara/internal/apperrors"
	"acara/internal/middleware"
	"acara/internal/models"
	"acara/internal/services"
	"acara/internal/storage"
)

// EventHandler handles HTTP requests for events.
type EventHandler struct {
	service *services.EventService
	auth    *services.AuthService
	images  storage.ImageStore
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service *services.EventService, auth *services.AuthService, images storage.ImageStore) *EventHandler {
	return &EventHandler{
		service: service,
		auth:    auth,
		images:  images,
	}
}

// RegisterRoutes registers the event routes with the Fiber app.
// Reads are public; mutations and /my require a bearer token. The
// static paths must be registered before the :id parameter route.
func (h *EventHandler) RegisterRoutes(router fiber.Router) {
	authRequired := middleware.AuthRequired(h.auth)

	events := router.Group("/events")
	events.Get("/", h.HandleGetAll)
	events.Get("/search", h.HandleSearch)
	events.Get("/my", authRequired, h.HandleGetMine)
	events.Get("/:id", h.HandleGetByID)
	events.Post("/", authRequired, h.HandleCreate)
	events.Put("/:id", authRequired, h.HandleUpdate)
	events.Delete("/:id", authRequired, h.HandleDelete)
}

// HandleGetAll returns every event, newest first.
func (h *EventHandler) HandleGetAll(c *fiber.Ctx) error {
	events, err := h.service.GetAll()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(h.listResponse(events))
}

// HandleSearch returns events matching the q query parameter.
func (h *EventHandler) HandleSearch(c *fiber.Ctx) error {
	events, err := h.service.Search(c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(h.listResponse(events))
}

// HandleGetMine returns the authenticated caller's events.
func (h *EventHandler) HandleGetMine(c *fiber.Ctx) error {
	events, err := h.service.GetByUser(middleware.CallerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(h.listResponse(events))
}

// HandleGetByID returns a single event.
func (h *EventHandler) HandleGetByID(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	event, err := h.service.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"event": h.withImageURL(*event)})
}

// HandleCreate creates an event owned by the caller from a multipart
// form with fields title, description, address, date and an optional
// image file.
func (h *EventHandler) HandleCreate(c *fiber.Ctx) error {
	input := eventInputFromForm(c)

	up, file, err := uploadFromForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if file != nil {
		defer file.Close()
	}

	event, err := h.service.Create(c.Context(), input, up, middleware.CallerID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Event created successfully",
		"event":   h.withImageURL(*event),
	})
}

// HandleUpdate edits an event the caller owns. Omitting the image
// file keeps the current image.
func (h *EventHandler) HandleUpdate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	input := eventInputFromForm(c)

	up, file, err := uploadFromForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if file != nil {
		defer file.Close()
	}

	event, err := h.service.Update(c.Context(), id, input, up, middleware.CallerID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Event updated successfully",
		"event":   h.withImageURL(*event),
	})
}

// HandleDelete removes an event the caller owns.
func (h *EventHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.service.Delete(c.Context(), id, middleware.CallerID(c)); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Event deleted successfully"})
}

// listResponse renders the {events, count} envelope with resolved
// image URLs.
func (h *EventHandler) listResponse(events []models.Event) fiber.Map {
	out := make([]models.Event, len(events))
	for i, e := range events {
		out[i] = h.withImageURL(e)
	}
	return fiber.Map{"events": out, "count": len(out)}
}

// withImageURL swaps the stored image reference for a retrievable URL.
func (h *EventHandler) withImageURL(event models.Event) models.Event {
	event.Image = h.images.URLFor(event.Image)
	return event
}

// eventInputFromForm collects the text fields of a multipart form.
func eventInputFromForm(c *fiber.Ctx) services.EventInput {
	return services.EventInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Address:     c.FormValue("address"),
		Date:        c.FormValue("date"),
	}
}

// uploadFromForm opens the optional image file of a multipart form.
// The caller must close the returned file when it is non-nil.
func uploadFromForm(c *fiber.Ctx) (*storage.Upload, multipart.File, error) {
	header, err := c.FormFile("image")
	if err != nil {
		// No file field present; the image is optional.
		return nil, nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, apperrors.NewValidation("image", "could not read uploaded file")
	}

	return &storage.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}, file, nil
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, apperrors.NewValidation("id", "must be a positive integer")
	}
	return uint(id), nil
}
