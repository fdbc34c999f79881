// Package agents runs the AI advisory agents.  Each agent exposes a set of
// actions; an action reads company data, renders a prompt from the catalog,
// makes one completion call and decodes the reply strictly against the
// action's schema.
package agents

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Parameter types accepted in the catalog.
const (
	ParamString = "string"
	ParamInt    = "int"
	ParamNumber = "number"
	ParamBool   = "bool"
)

// Param declares one action parameter.
type Param struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
	Default  any    `yaml:"default" json:"default,omitempty"`
}

// Action is one operation of an agent.
type Action struct {
	Name        string   `yaml:"-" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Schema      string   `yaml:"schema" json:"schema"`
	Reads       []string `yaml:"reads" json:"reads,omitempty"`
	Params      []Param  `yaml:"params" json:"params"`
	Prompt      string   `yaml:"prompt" json:"-"`

	tmpl *template.Template
}

// Agent groups actions behind one endpoint.
type Agent struct {
	Name        string             `yaml:"-" json:"name"`
	Description string             `yaml:"description" json:"description"`
	System      string             `yaml:"system" json:"-"`
	Actions     map[string]*Action `yaml:"actions" json:"actions"`
}

// Catalog is the parsed set of agents.
type Catalog struct {
	Agents map[string]*Agent `yaml:"agents"`
}

// LoadCatalog reads the catalog at path, or the built-in one when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(embeddedCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "read agent catalog").WithDetail("path=" + path)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and checks a YAML catalog: every action needs a known
// schema, known reads, typed params and a prompt that compiles.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "parse agent catalog")
	}
	if len(c.Agents) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "agent catalog is empty")
	}
	for name, a := range c.Agents {
		if a == nil || len(a.Actions) == 0 {
			return nil, errors.Newf(errors.ErrCodeValidation, "agent %q has no actions", name)
		}
		a.Name = name
		for actName, act := range a.Actions {
			if act == nil {
				return nil, errors.Newf(errors.ErrCodeValidation, "agent %q action %q is empty", name, actName)
			}
			act.Name = actName
			if err := act.check(name); err != nil {
				return nil, err
			}
		}
	}
	return &c, nil
}

func (a *Action) check(agent string) error {
	where := agent + "." + a.Name
	if _, ok := schemas[a.Schema]; !ok {
		return errors.Newf(errors.ErrCodeValidation, "%s: unknown schema %q", where, a.Schema)
	}
	for _, r := range a.Reads {
		if _, ok := knownReads[r]; !ok {
			return errors.Newf(errors.ErrCodeValidation, "%s: unknown read %q", where, r)
		}
	}
	seen := make(map[string]struct{}, len(a.Params))
	for _, p := range a.Params {
		switch p.Type {
		case ParamString, ParamInt, ParamNumber, ParamBool:
		default:
			return errors.Newf(errors.ErrCodeValidation, "%s: param %q has unknown type %q", where, p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return errors.Newf(errors.ErrCodeValidation, "%s: duplicate param %q", where, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if strings.TrimSpace(a.Prompt) == "" {
		return errors.Newf(errors.ErrCodeValidation, "%s: empty prompt", where)
	}
	t, err := template.New(where).Funcs(promptFuncs()).Option("missingkey=error").Parse(a.Prompt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAgentPromptFailed, "compile prompt").WithDetail(where)
	}
	a.tmpl = t
	return nil
}

// Lookup returns the agent and action, or AGT_001 / AGT_002.
func (c *Catalog) Lookup(agent, action string) (*Agent, *Action, error) {
	a, ok := c.Agents[agent]
	if !ok {
		return nil, nil, errors.New(errors.ErrCodeAgentNotFound, "agent not found").WithDetail("agent=" + agent)
	}
	act, ok := a.Actions[action]
	if !ok {
		return nil, nil, errors.New(errors.ErrCodeAgentActionUnsupported, "unsupported agent action").
			WithDetail(fmt.Sprintf("agent=%s action=%s supported=%s", agent, action, strings.Join(a.ActionNames(), ",")))
	}
	return a, act, nil
}

// Names returns the agent names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Agents))
	for n := range c.Agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ActionNames returns the agent's action names in order.
func (a *Agent) ActionNames() []string {
	names := make([]string, 0, len(a.Actions))
	for n := range a.Actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ReadsFrom reports whether the action declares source r.
func (a *Action) ReadsFrom(r string) bool {
	for _, x := range a.Reads {
		if x == r {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Parameters
// ─────────────────────────────────────────────────────────────────────────────

// NormalizeParams checks raw against the action's declarations and returns a
// map holding every declared param, typed, with defaults applied.  Unknown
// keys are rejected.
func (a *Action) NormalizeParams(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(a.Params))
	declared := make(map[string]struct{}, len(a.Params))
	for _, p := range a.Params {
		declared[p.Name] = struct{}{}
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, paramError(p.Name, "is required")
			}
			v = p.Default
		}
		cv, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		if p.Required && p.Type == ParamString && strings.TrimSpace(cv.(string)) == "" {
			return nil, paramError(p.Name, "must not be empty")
		}
		out[p.Name] = cv
	}
	for k := range raw {
		if _, ok := declared[k]; !ok {
			return nil, paramError(k, "is not a parameter of this action")
		}
	}
	return out, nil
}

func coerce(p Param, v any) (any, error) {
	switch p.Type {
	case ParamString:
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, paramError(p.Name, "must be a string")
		}
		return s, nil
	case ParamInt:
		if v == nil {
			return 0, nil
		}
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, paramError(p.Name, "must be an integer")
		}
		return int(f), nil
	case ParamNumber:
		if v == nil {
			return 0.0, nil
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, paramError(p.Name, "must be a number")
		}
		return f, nil
	case ParamBool:
		if v == nil {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, paramError(p.Name, "must be a boolean")
		}
		return b, nil
	}
	return nil, paramError(p.Name, "has an unknown type")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func paramError(name, msg string) error {
	return errors.New(errors.ErrCodeAgentParamsInvalid, "invalid agent parameters").WithDetail(name + " " + msg)
}

// ─────────────────────────────────────────────────────────────────────────────
// Prompt rendering
// ─────────────────────────────────────────────────────────────────────────────

// Render executes the action's prompt against data.
func (a *Action) Render(data *PromptData) (string, error) {
	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAgentPromptFailed, "render prompt").WithDetail(a.Name)
	}
	return strings.TrimSpace(buf.String()), nil
}

func promptFuncs() template.FuncMap {
	return template.FuncMap{
		"join":     strings.Join,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"default":  templateDefault,
		"truncate": templateTruncate,
		"money":    templateMoney,
		"date":     templateDate,
	}
}

func templateDefault(defaultVal, actual string) string {
	if strings.TrimSpace(actual) == "" {
		return defaultVal
	}
	return actual
}

func templateTruncate(maxLen int, s string) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

func templateMoney(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f EUR", *v)
}

func templateDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02")
}

//Personal.AI order the ending
