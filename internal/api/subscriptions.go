package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/store"
)

// subscriptionRequest is the body of create and update calls
type subscriptionRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Email     string   `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone     string   `json:"phone" validate:"required_without=Email,omitempty,e164"`
	Locations []string `json:"locations" validate:"required,min=1,dive,required"`
	Threshold string   `json:"threshold" validate:"required,oneof=medium high very_high"`
}

func (h *Handler) bindSubscription(c *fiber.Ctx) (subscriptionRequest, aqi.Tier, error) {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return req, aqi.TierNone, fmt.Errorf("invalid body: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, aqi.TierNone, validationError(err)
	}
	for _, id := range req.Locations {
		if _, ok := h.locations[id]; !ok {
			return req, aqi.TierNone, fmt.Errorf("unknown location %q", id)
		}
	}
	tier, err := aqi.ParseTier(req.Threshold)
	if err != nil {
		return req, aqi.TierNone, err
	}
	return req, tier, nil
}

func subscriptionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("sid"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid subscription id")
	}
	return id, nil
}

func (h *Handler) CreateSubscription(c *fiber.Ctx) error {
	req, tier, err := h.bindSubscription(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sub := aqi.Subscription{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Locations: req.Locations,
		Threshold: tier,
	}
	if err := h.deps.Subscriptions.CreateSubscription(c.Context(), &sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *Handler) GetSubscription(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return err
	}

	sub, err := h.deps.Subscriptions.GetSubscription(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "subscription not found")
	}
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	return c.JSON(sub)
}

func (h *Handler) UpdateSubscription(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return err
	}
	req, tier, err := h.bindSubscription(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.Context()
	sub, err := h.deps.Subscriptions.GetSubscription(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "subscription not found")
	}
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	if !sub.Active {
		return fiber.NewError(fiber.StatusConflict, "subscription is inactive")
	}

	sub.Name = req.Name
	sub.Email = req.Email
	sub.Phone = req.Phone
	sub.Locations = req.Locations
	sub.Threshold = tier
	if err := h.deps.Subscriptions.UpdateSubscription(ctx, &sub); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "subscription not found")
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return c.JSON(sub)
}

// DeactivateSubscription stops deliveries for a subscription. The row is kept.
func (h *Handler) DeactivateSubscription(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return err
	}

	err = h.deps.Subscriptions.DeactivateSubscription(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "subscription not found")
	}
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
