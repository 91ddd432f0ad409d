package issues

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/issuedesk/backend/internal/models"
)

// RegisterValidators installs the issue enum validators on gin's binding
// engine. Call once before routes are served.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("issuestatus", func(fl validator.FieldLevel) bool {
		return models.IssueStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("issuepriority", func(fl validator.FieldLevel) bool {
		return models.IssuePriority(fl.Field().String()).Valid()
	})
}
