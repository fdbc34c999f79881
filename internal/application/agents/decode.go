package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Status tags the outcome of one agent run.
type Status string

const (
	StatusOK            Status = "ok"
	StatusParseError    Status = "parse_error"
	StatusUpstreamError Status = "upstream_error"
	StatusDataError     Status = "data_error"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func outputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeStrict decodes reply into out.  The reply must be exactly one JSON
// object (optionally fenced), carry no fields out does not declare and pass
// out's validate tags.  Any failure is AGT_003.
func DecodeStrict(reply string, out any) error {
	body := StripFences(reply)
	if body == "" {
		return outputError("empty reply")
	}
	if body[0] != '{' {
		return outputError("reply is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return outputError(err.Error())
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return outputError("trailing data after JSON object")
	}

	if err := outputValidator().Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return outputError(strings.Join(msgs, "; "))
		}
		return outputError(err.Error())
	}
	return nil
}

func outputError(detail string) error {
	return errors.New(errors.ErrCodeAgentOutputInvalid, "AI response did not match the expected schema").WithDetail(detail)
}

//Personal.AI order the ending
