package academic

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

const DefaultSection = "A"

var (
	errRequired = errors.New("this field is required")

	weekdayTag  = "weekday"
	weekdayText = "must be one of Lunes, Martes, Miércoles, Jueves, Viernes"

	clockTag  = "clock"
	clockText = "must be a time of day between 00:00 and 23:59"

	termTag  = "term"
	termText = "lapso must be 1, 2 or 3"
)

// InitValidators registers the academic validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(weekdayTag, weekdayValidation)
	core.RegisterCustomTranslation(validate, translator, weekdayTag, weekdayText)

	_ = validate.RegisterValidation(clockTag, clockValidation)
	core.RegisterCustomTranslation(validate, translator, clockTag, clockText)

	_ = validate.RegisterValidation(termTag, termValidation)
	core.RegisterCustomTranslation(validate, translator, termTag, termText)
}

func weekdayValidation(fl validator.FieldLevel) bool {
	return Day(fl.Field().String()).Valid()
}

func clockValidation(fl validator.FieldLevel) bool {
	return Clock(fl.Field().Int()).Valid()
}

func termValidation(fl validator.FieldLevel) bool {
	term := fl.Field().Int()
	return term >= 1 && term <= Terms
}
