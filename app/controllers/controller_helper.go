package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/usercontext"
)

var validate = validator.New()

// bindJSON parses the request body into dst and validates its struct tags.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation(apperror.CodeInvalidPayload, "request body is not valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.Validation(apperror.CodeValidationFailed, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}

// queryInt reads an integer query parameter and clamps it to [min, max].
// Unparseable values fall back to def.
func queryInt(c *fiber.Ctx, key string, def, min, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// adminLabel names the acting admin in audit log lines.
func adminLabel(c *fiber.Ctx) string {
	if email := usercontext.GetEmail(c); email != "" {
		return email
	}
	return "anonymous@" + c.IP()
}
