package httpx

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[(0-9][0-9 ()-]{5,19}$`)
	registerOnce sync.Once
)

// RegisterValidators adds the custom binding rules used by request DTOs.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
				return phonePattern.MatchString(fl.Field().String())
			})
		}
	})
}
