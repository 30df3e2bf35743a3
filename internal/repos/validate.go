// Package repos provides the specialized repositories: thin instantiations
// of the generic engine with an entity-specific codec, validation hook, and
// convenience finders. No SQL for filtered reads lives here; everything
// routes through the generic List/FindBy paths.
package repos

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/recordkit/recordkit/internal/models"
)

// vd is the shared validator instance. validator.Validate is safe for
// concurrent use after construction.
var vd = validator.New(validator.WithRequiredStructEnabled())

// checkStruct runs tag-based validation and converts the first violation
// into the shared ValidationError type.
func checkStruct(s any) error {
	err := vd.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]

		return &models.ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: "failed " + fe.Tag() + " constraint",
		}
	}

	return &models.ValidationError{Message: err.Error()}
}
