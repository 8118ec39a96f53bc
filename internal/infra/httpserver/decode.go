package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/act-admin/my-github-hub/internal/domain/query"
)

const maxRequestBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// error messages use the label tag, falling back to the json name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

type queryBody struct {
	Query    string `json:"query" label:"Query" validate:"required,max=4000"`
	GroupID  string `json:"group_id" validate:"omitempty,max=128"`
	ReportID string `json:"report_id" validate:"omitempty,max=128"`
}

type sqlBody struct {
	SQL     string  `json:"sql" label:"SQL query" validate:"required,max=20000"`
	Timeout float64 `json:"timeout" validate:"omitempty,min=0"`
}

// decodeAndValidate parses a JSON body into dst and runs its validate tags.
// Failures come back as query.ErrInput errors.
func decodeAndValidate(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return &query.Error{Kind: query.ErrInput, Message: "Invalid JSON body", Err: err}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &query.Error{Kind: query.ErrInput, Message: fieldMessage(verrs[0]), Err: err}
		}
		return &query.Error{Kind: query.ErrInput, Message: "Invalid request", Err: err}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}
