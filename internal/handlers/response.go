package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/middleware"
	"github.com/tourdesk/ledger-backend/internal/models"
)

var bindingOnce sync.Once

// useJSONFieldNames makes validator report json field names instead of Go names
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// bindJSON decodes the request body and converts every failure into a models.ValidationError
func bindJSON(c *gin.Context, dst interface{}) error {
	bindingOnce.Do(useJSONFieldNames)

	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return models.ValidationError{Field: fe.Field(), Msg: describeTag(fe), Err: err}
	}

	var valErr models.ValidationError
	if errors.As(err, &valErr) {
		return valErr
	}

	return models.ValidationError{Field: "body", Msg: "invalid request body", Err: err}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "max":
		return "must have at most " + fe.Param() + " item(s)"
	}
	return "failed " + fe.Tag() + " validation"
}

// parseUUIDParam reads a path parameter as a UUID
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, models.ValidationError{Field: name, Msg: "must be a valid UUID", Err: err}
	}
	return id, nil
}

// requireActor returns the authenticated operator or writes a 401
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "unauthorized",
			"message": "Authentication required",
		})
		return models.Actor{}, false
	}
	return actor, true
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps the domain error taxonomy onto HTTP statuses
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		valErr      models.ValidationError
		notFoundErr models.NotFoundError
		conflictErr models.ConflictError
	)

	switch {
	case errors.As(err, &valErr):
		body := gin.H{
			"success": false,
			"error":   "validation_error",
			"message": valErr.Error(),
		}
		if valErr.Field != "" {
			body["field"] = valErr.Field
		}
		c.JSON(http.StatusBadRequest, body)

	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": notFoundErr.Error(),
		})

	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "conflict",
			"message": "The booking was changed by someone else. Please retry.",
		})

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Request abandoned")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "request_cancelled",
			"message": "The request was cancelled before it completed",
		})

	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Something went wrong",
		})
	}
}
