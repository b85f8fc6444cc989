package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// KnownVars are the recipient variables the email templates are written
// against. Any other key is accepted and passed through.
var KnownVars = []string{
	"correlation_id", "university_name", "athlete_id", "athlete_name", "sport",
	"gender_id", "max_roster_year", "seeking_text", "seeking_color", "email_address",
	"step_1", "step_2", "step_3", "step_4", "step_5",
	"step_6", "step_7", "step_8", "step_9", "step_10",
	"checklist_steps", "checklist_color",
}

// numeric known vars arrive from the admin UI either as numbers or strings.
var numericVars = map[string]bool{"gender_id": true, "max_roster_year": true}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate decodes a raw request body and checks it field by field. The
// returned error is a *ValidationError carrying every issue found, type
// mismatches included.
func Validate(raw []byte) (CampaignRequest, error) {
	var req CampaignRequest

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return req, &ValidationError{Issues: []Issue{{Path: "", Message: "request body is empty"}}}
	}

	typeIssues, err := decodeRequest(raw, &req)
	if err != nil {
		return req, &ValidationError{Issues: []Issue{{Path: "", Message: "malformed JSON: " + err.Error()}}}
	}

	err = ValidateRequest(&req)
	if len(typeIssues) == 0 {
		return req, err
	}

	issues := typeIssues
	var verr *ValidationError
	if errors.As(err, &verr) {
		for _, is := range verr.Issues {
			if !coveredBy(is.Path, typeIssues) {
				issues = append(issues, is)
			}
		}
	} else if err != nil {
		return req, err
	}
	return req, &ValidationError{Issues: issues}
}

// decodeRequest fills req one field at a time so a type mismatch in one
// field does not hide the others. Only syntax errors are returned as error.
func decodeRequest(raw []byte, req *CampaignRequest) ([]Issue, error) {
	if !json.Valid(raw) {
		var discard any
		return nil, json.Unmarshal(raw, &discard)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return []Issue{{Path: "", Message: "must be a JSON object"}}, nil
	}

	var issues []Issue
	for _, f := range []struct {
		name string
		dst  any
	}{
		{"campaign_id", &req.CampaignID},
		{"correlation_id", &req.CorrelationID},
		{"subject", &req.Subject},
		{"template_key", &req.TemplateKey},
		{"from_name", &req.FromName},
		{"from_address", &req.FromAddress},
		{"reply_to_address", &req.ReplyToAddress},
	} {
		if v, ok := fields[f.name]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				issues = append(issues, typeIssue(f.name, err))
			}
		}
	}

	v, ok := fields["recipients"]
	if !ok {
		return issues, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v, &elems); err != nil {
		return append(issues, typeIssue("recipients", err)), nil
	}
	if elems == nil {
		return issues, nil
	}
	req.Recipients = make([]Recipient, len(elems))
	for i, e := range elems {
		if err := json.Unmarshal(e, &req.Recipients[i]); err != nil {
			issues = append(issues, typeIssue(fmt.Sprintf("recipients[%d]", i), err))
		}
	}
	return issues, nil
}

func typeIssue(path string, err error) Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			path += "." + typeErr.Field
		}
		return Issue{
			Path:    path,
			Message: fmt.Sprintf("must be of type %s, got %s", typeErr.Type.String(), typeErr.Value),
		}
	}
	return Issue{Path: path, Message: err.Error()}
}

// coveredBy reports whether path is the same as, or nested under, a field
// that already failed to decode. An empty path is the whole body.
func coveredBy(path string, typeIssues []Issue) bool {
	for _, ti := range typeIssues {
		if ti.Path == "" || path == ti.Path || strings.HasPrefix(path, ti.Path+".") || strings.HasPrefix(path, ti.Path+"[") {
			return true
		}
	}
	return false
}

// ValidateRequest runs the struct rules and the vars type checks on an
// already decoded request.
func ValidateRequest(req *CampaignRequest) error {
	var issues []Issue

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate campaign request: %w", err)
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{Path: fieldPath(fe.Namespace()), Message: tagMessage(fe)})
		}
	}

	for i, r := range req.Recipients {
		issues = append(issues, checkVars(i, r.Vars)...)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func checkVars(idx int, vars map[string]any) []Issue {
	var issues []Issue
	for _, key := range KnownVars {
		v, ok := vars[key]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case string:
			continue
		case float64:
			if numericVars[key] {
				continue
			}
		}
		msg := "must be a string"
		if numericVars[key] {
			msg = "must be a string or a number"
		}
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("recipients[%d].vars.%s", idx, key),
			Message: msg,
		})
	}
	return issues
}

// fieldPath drops the root struct name validator prefixes to namespaces.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
