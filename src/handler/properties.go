package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"rentalops/src/apperrors"
	"rentalops/src/middleware"
	"rentalops/src/model"
	"rentalops/src/repository"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const maxPageSize = 100

type propertyStore interface {
	List(ctx context.Context, opts repository.PropertySearchOptions) ([]model.Property, error)
	Get(ctx context.Context, id uint) (*model.Property, error)
	Create(ctx context.Context, p *model.Property) error
}

// ListPropertiesHandler lists properties, optionally filtered by ownerId,
// city and limit.
func ListPropertiesHandler(store propertyStore) middleware.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		q := r.URL.Query()
		var opts repository.PropertySearchOptions
		var violations []apperrors.FieldViolation

		if raw := q.Get("ownerId"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || id == 0 {
				violations = append(violations, apperrors.InvalidFormat("ownerId", raw))
			} else {
				opts.OwnerID = uint(id)
			}
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 || limit > maxPageSize {
				violations = append(violations, apperrors.InvalidFormat("limit", raw))
			} else {
				opts.Limit = limit
			}
		}
		if len(violations) > 0 {
			return apperrors.NewValidationError("invalid query parameters", violations)
		}
		opts.City = strings.TrimSpace(q.Get("city"))

		properties, err := store.List(r.Context(), opts)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    properties,
			"count":   len(properties),
		})
	}
}

func GetPropertyHandler(store propertyStore) middleware.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		raw := chi.URLParam(r, "id")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return apperrors.NewValidationError("invalid property id",
				[]apperrors.FieldViolation{apperrors.InvalidFormat("id", raw)})
		}

		p, err := store.Get(r.Context(), uint(id))
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": p})
	}
}

// CreatePropertyHandler validates the payload and stores a new property.
// Every invalid field is reported, not only the first one.
func CreatePropertyHandler(store propertyStore) middleware.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var payload model.CreatePropertyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return apperrors.NewValidationError("request body must be a JSON object",
				[]apperrors.FieldViolation{apperrors.InvalidFormat("body", nil)})
		}

		property, violations := validateProperty(payload)
		if len(violations) > 0 {
			return apperrors.NewValidationError("property payload is invalid", violations)
		}

		if err := store.Create(r.Context(), property); err != nil {
			return err
		}
		logger.WithFields(logger.Fields{
			"property_id": property.ID,
			"owner_id":    property.OwnerID,
		}).Info("Property registered")
		return writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": property})
	}
}

func validateProperty(p model.CreatePropertyPayload) (*model.Property, []apperrors.FieldViolation) {
	var violations []apperrors.FieldViolation

	if p.OwnerID == 0 {
		violations = append(violations, apperrors.RequiredField("owner_id"))
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		violations = append(violations, apperrors.RequiredField("name"))
	}
	city := strings.TrimSpace(p.City)
	if city == "" {
		violations = append(violations, apperrors.RequiredField("city"))
	}

	var rate decimal.Decimal
	if strings.TrimSpace(p.NightlyRate) == "" {
		violations = append(violations, apperrors.RequiredField("nightly_rate"))
	} else if d, err := decimal.NewFromString(p.NightlyRate); err != nil || !d.IsPositive() {
		violations = append(violations, apperrors.InvalidFormat("nightly_rate", p.NightlyRate))
	} else {
		rate = d.Round(2)
	}

	if p.MaxGuests <= 0 {
		violations = append(violations, apperrors.InvalidFormat("max_guests", p.MaxGuests))
	}
	if len(violations) > 0 {
		return nil, violations
	}

	return &model.Property{
		OwnerID:     p.OwnerID,
		Name:        name,
		Address:     strings.TrimSpace(p.Address),
		City:        city,
		NightlyRate: rate,
		MaxGuests:   p.MaxGuests,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
