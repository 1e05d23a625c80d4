package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// ErrInvalidNews is returned when a create/update payload fails validation.
// The wrapped message names each failing field and is safe to return to the caller.
var ErrInvalidNews = errors.New("invalid news data")

// MinTextLength is the minimum length, in characters, of a news title and body.
const MinTextLength = 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateNews checks the title and content lengths of a news payload.
func ValidateNews(in models.NewsInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidNews, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidNews, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}
