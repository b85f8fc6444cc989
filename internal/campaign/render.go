package campaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Whitespace classes include Unicode spaces and BOM, not only ASCII \s.
var emailShape = regexp.MustCompile(`^[^\s\p{Z}\x{FEFF}@]+@[^\s\p{Z}\x{FEFF}@]+\.[^\s\p{Z}\x{FEFF}@]+$`)

type RenderOptions struct {
	ConfigurationSet string
	// Workers bounds parallel rendering; values below 2 render sequentially.
	Workers int
}

// MergeVars builds the substitution map for one recipient. Derived fields go
// in first so that explicit recipient vars override them.
func MergeVars(r Recipient) map[string]any {
	merged := make(map[string]any, len(r.Vars)+2)
	merged["university_name"] = r.University
	merged["row_id"] = r.RecipientID
	for k, v := range r.Vars {
		merged[k] = v
	}
	return merged
}

// Substitute replaces every {{key}} marker for the keys present in vars.
// Markers without a matching key are left as they are.
func Substitute(tmpl string, vars map[string]any) string {
	if len(vars) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", stringify(vars[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := encodeJSON(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Render substitutes one recipient's variables into the campaign templates
// and serializes the resulting queue body.
func Render(req *CampaignRequest, r Recipient, opts RenderOptions) (RenderedMessage, error) {
	vars := MergeVars(r)

	subject := Substitute(req.Subject, vars)
	fromName := Substitute(req.FromName, vars)
	fromAddress := Substitute(req.FromAddress, vars)

	if !emailShape.MatchString(fromAddress) {
		return RenderedMessage{}, &TemplateRenderError{
			RecipientID: r.RecipientID,
			Field:       "from_address",
			Value:       fromAddress,
		}
	}

	university := stringify(vars["university_name"])
	env := Envelope{
		Event:            EventSendEmail,
		CorrelationID:    req.CorrelationID,
		CampaignID:       req.CampaignID,
		UniversityName:   university,
		RecipientID:      r.RecipientID,
		EmailToAddress:   r.Email,
		EmailFromName:    fromName,
		EmailFromAddress: fromAddress,
		ReplyToAddress:   req.ReplyToAddress,
		EmailSubject:     subject,
		TemplateKey:      req.TemplateKey,
		Vars:             vars,
		ConfigurationSet: opts.ConfigurationSet,
		Tags:             buildTags(req.CampaignID, req.CorrelationID, university),
	}

	body, err := encodeJSON(env)
	if err != nil {
		return RenderedMessage{}, fmt.Errorf("marshal envelope for recipient %s: %w", r.RecipientID, err)
	}

	return RenderedMessage{
		RecipientID: r.RecipientID,
		Email:       r.Email,
		Subject:     subject,
		FromName:    fromName,
		FromAddress: fromAddress,
		Vars:        vars,
		Body:        body,
		Size:        len(body),
	}, nil
}

// encodeJSON marshals v without HTML escaping, so '<', '>' and '&' stay one
// byte each on the wire and in the size check.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RenderAll renders every recipient in input order. The first failing
// recipient, by position, aborts the whole request.
func RenderAll(req *CampaignRequest, opts RenderOptions) ([]RenderedMessage, error) {
	out := make([]RenderedMessage, len(req.Recipients))

	if opts.Workers < 2 {
		for i, r := range req.Recipients {
			msg, err := Render(req, r, opts)
			if err != nil {
				return nil, err
			}
			out[i] = msg
		}
		return out, nil
	}

	errs := make([]error, len(req.Recipients))
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i := range req.Recipients {
		g.Go(func() error {
			out[i], errs[i] = Render(req, req.Recipients[i], opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
