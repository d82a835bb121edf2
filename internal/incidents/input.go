package incidents

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/patrickwarner/pollwatch/internal/apperr"
	"github.com/patrickwarner/pollwatch/internal/models"
)

// MinDescriptionLength is the minimum description length in characters.
const MinDescriptionLength = 50

// MaxEvidence is the most evidence references a report may carry.
const MaxEvidence = 5

// CreateInput is a normalized report submission. Wire formats are converted
// into it by ParseAnonymous and ParseCoordinates before it reaches Create.
type CreateInput struct {
	IncidentType string              `json:"incidentType" validate:"required,incident_type"`
	Location     string              `json:"location" validate:"required"`
	Description  string              `json:"description" validate:"required,min=50"`
	Anonymous    bool                `json:"anonymous"`
	Coordinates  *models.Coordinates `json:"coordinates"`
	Evidence     []string            `json:"evidence" validate:"max=5"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("incident_type", func(fl validator.FieldLevel) bool {
		return models.IncidentType(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the input and returns a ValidationFailed error describing
// the first problem found.
func (in *CreateInput) Validate() error {
	in.Location = strings.TrimSpace(in.Location)
	in.IncidentType = strings.TrimSpace(in.IncidentType)

	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation(apperr.ReasonInvalidArg, "invalid incident report")
	}
	return validationMessage(verrs[0])
}

func validationMessage(fe validator.FieldError) *apperr.Error {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return apperr.Validation(apperr.ReasonInvalidArg, "%s is required", field)
	case "incident_type":
		return apperr.Validation(apperr.ReasonInvalidArg, "%s must be one of: %s", field, joinTypes())
	case "min":
		return apperr.Validation(apperr.ReasonInvalidArg, "%s must be at least %s characters", field, fe.Param())
	case "max":
		return apperr.Validation(apperr.ReasonTooMany, "at most %s %s files are allowed", fe.Param(), field)
	case "latitude":
		return apperr.Validation(apperr.ReasonInvalidArg, "%s must be between -90 and 90", field)
	case "longitude":
		return apperr.Validation(apperr.ReasonInvalidArg, "%s must be between -180 and 180", field)
	default:
		return apperr.Validation(apperr.ReasonInvalidArg, "%s is invalid", field)
	}
}

func joinTypes() string {
	names := make([]string, len(models.IncidentTypes))
	for i, t := range models.IncidentTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ParseAnonymous normalizes the anonymous flag from its wire forms: a JSON
// boolean, or a form string such as "true", "false", "1", "0", "on", "off",
// "yes" or "no". A missing value means false.
func ParseAnonymous(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "":
			return false, nil
		case "on", "yes":
			return true, nil
		case "off", "no":
			return false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, apperr.Validation(apperr.ReasonInvalidArg, "anonymous must be a boolean")
		}
		return b, nil
	default:
		return false, apperr.Validation(apperr.ReasonInvalidArg, "anonymous must be a boolean")
	}
}

// ParseCoordinates decodes the coordinates form field, a JSON object with
// lat and lng. An empty string means no coordinates.
func ParseCoordinates(raw string) (*models.Coordinates, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var wire struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidArg, "coordinates must be a JSON object with lat and lng")
	}
	if wire.Lat == nil || wire.Lng == nil {
		return nil, apperr.Validation(apperr.ReasonInvalidArg, "coordinates must include both lat and lng")
	}
	return &models.Coordinates{Lat: *wire.Lat, Lng: *wire.Lng}, nil
}

// ParseStatus validates a requested moderation status.
func ParseStatus(s string) (models.Status, error) {
	st := models.Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", apperr.Validation(apperr.ReasonInvalidArg, "status must be one of: pending, verified, flagged, resolved")
	}
	return st, nil
}

func (in CreateInput) String() string {
	return fmt.Sprintf("CreateInput{type=%s anonymous=%t evidence=%d}", in.IncidentType, in.Anonymous, len(in.Evidence))
}
