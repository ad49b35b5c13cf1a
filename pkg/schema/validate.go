package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected field of an inbound lead.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when an inbound payload does not describe a lead.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid lead: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var fieldOrder = map[string]int{
	"body":     0,
	"name":     1,
	"email":    2,
	"phone":    3,
	"company":  4,
	"role":     5,
	"location": 6,
	"score":    7,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeLead reads one JSON object from r and validates it.
func DecodeLead(r io.Reader) (LeadInput, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return LeadInput{}, bodyError("request body is empty")
		}
		return LeadInput{}, bodyError("malformed JSON: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return LeadInput{}, bodyError("unexpected data after the JSON object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return LeadInput{}, bodyError("expected a JSON object, received " + typeName(raw))
	}
	return Validate(obj)
}

func bodyError(msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: "body", Message: msg}}}
}

// Validate turns an untyped payload into a LeadInput. Every violation is
// reported, not only the first. Caller supplied id and timestamp keys are
// ignored along with any other unknown key.
func Validate(raw map[string]any) (LeadInput, error) {
	var (
		in      LeadInput
		errs    []FieldError
		badType = make(map[string]bool)
	)

	text := func(field string, dst *string) {
		v, ok := raw[field]
		if !ok || v == nil {
			return
		}
		s, ok := v.(string)
		if !ok {
			badType[field] = true
			errs = append(errs, FieldError{Field: field, Message: "expected string, received " + typeName(v)})
			return
		}
		*dst = s
	}
	text("name", &in.Name)
	text("email", &in.Email)
	text("company", &in.Company)
	text("role", &in.Role)
	text("location", &in.Location)

	switch v := raw["phone"].(type) {
	case nil:
	case string:
		in.Phone = &v
	default:
		errs = append(errs, FieldError{Field: "phone", Message: "expected string, received " + typeName(v)})
	}

	if v, ok := raw["score"]; !ok || v == nil {
		errs = append(errs, FieldError{Field: "score", Message: "required"})
	} else if n, err := toInt(v); err != nil {
		errs = append(errs, FieldError{Field: "score", Message: err.Error()})
	} else {
		in.Score = n
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return LeadInput{}, fmt.Errorf("validate lead: %w", err)
		}
		for _, fe := range verrs {
			if badType[fe.Field()] {
				continue
			}
			errs = append(errs, FieldError{Field: fe.Field(), Message: ruleMessage(fe.Tag())})
		}
	}

	if len(errs) > 0 {
		sort.SliceStable(errs, func(i, j int) bool {
			return fieldOrder[errs[i].Field] < fieldOrder[errs[j].Field]
		})
		return LeadInput{}, &ValidationError{Fields: errs}
	}
	return in, nil
}

func ruleMessage(tag string) string {
	switch tag {
	case "required":
		return "required"
	default:
		return "failed " + tag + " rule"
	}
}

func toInt(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return intInRange(float64(i), n.String())
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, received %s", n.String())
		}
		f = parsed
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return intInRange(float64(n), fmt.Sprint(n))
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return 0, fmt.Errorf("expected integer, received %s", typeName(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, received %v", f)
	}
	return intInRange(f, fmt.Sprint(f))
}

func intInRange(f float64, repr string) (int, error) {
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("integer %s out of range", repr)
	}
	return int(f), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
