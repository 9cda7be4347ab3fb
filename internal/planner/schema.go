package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/radicai/ad-agent-api/pkg/models"
)

var (
	// ErrNonJSON is returned when the generator's completion is not JSON.
	ErrNonJSON = errors.New("model returned non-JSON content")
	// ErrEmptyCompletion is returned when the generator's completion is blank.
	ErrEmptyCompletion = errors.New("model returned empty content")
)

// Validation subjects.
const (
	SubjectBrief = "brief"
	SubjectPlan  = "plan"
)

// ValidationError reports shape violations in a brief or plan.
type ValidationError struct {
	Subject string   `json:"subject"`
	Issues  []string `json:"issues"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Issues, "; "))
}

// IsValidationError reports whether err is a *ValidationError for subject
// (any subject when subject is empty).
func IsValidationError(err error, subject string) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return subject == "" || ve.Subject == subject
}

// schemaValidate is shared by every parse and validate call.
var schemaValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ── Brief ───────────────────────────────────────────────────

// ParseBrief decodes, defaults and validates a brief.
func ParseBrief(data []byte) (*models.Brief, error) {
	var b models.Brief
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &ValidationError{Subject: SubjectBrief, Issues: []string{decodeIssue(err)}}
	}
	if err := ValidateBrief(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ValidateBrief applies defaults and checks the brief's shape.
func ValidateBrief(b *models.Brief) error {
	b.ApplyDefaults()
	if err := schemaValidate.Struct(b); err != nil {
		return toValidationError(SubjectBrief, err)
	}
	return nil
}

// ── Plan ────────────────────────────────────────────────────

// requiredPlanKeys must be present in raw plan JSON even when their Go zero
// value would pass validation.
var requiredPlanKeys = []string{"total_budget"}

// ParsePlan decodes generator output into a plan and validates its shape.
// Blank content yields ErrEmptyCompletion and invalid JSON yields ErrNonJSON.
func ParsePlan(content []byte) (*models.Plan, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, ErrEmptyCompletion
	}
	if !json.Valid(content) {
		return nil, ErrNonJSON
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(content, &keys); err != nil {
		return nil, &ValidationError{Subject: SubjectPlan, Issues: []string{"plan must be a JSON object"}}
	}
	var missing []string
	for _, k := range requiredPlanKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k+": is required")
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Subject: SubjectPlan, Issues: missing}
	}

	var p models.Plan
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, &ValidationError{Subject: SubjectPlan, Issues: []string{decodeIssue(err)}}
	}
	if err := ValidatePlan(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidatePlan checks the plan's shape.
func ValidatePlan(p *models.Plan) error {
	if err := schemaValidate.Struct(p); err != nil {
		return toValidationError(SubjectPlan, err)
	}
	return nil
}

// ── Helpers ─────────────────────────────────────────────────

func toValidationError(subject string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Subject: subject, Issues: []string{err.Error()}}
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, fieldPath(fe.Namespace())+": "+describe(fe))
	}
	return &ValidationError{Subject: subject, Issues: issues}
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag()
	}
}

func decodeIssue(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "body is not valid JSON: " + syntaxErr.Error()
	}
	return err.Error()
}
