package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// agentRunner is the part of agents.Service the command needs.
type agentRunner interface {
	Run(ctx context.Context, req agents.Request) (*agents.Result, error)
}

type agentOptions struct {
	params     []string
	paramsJSON string
}

// NewAgentCmd lists the catalog, or invokes one agent action and prints its
// structured output.
func NewAgentCmd() *cobra.Command {
	opts := &agentOptions{}
	cmd := &cobra.Command{
		Use:   "agent [agent action]",
		Short: "List agents or invoke one action",
		Example: "  bizatlas agent\n" +
			"  bizatlas agent compliance deadlines --param company_id=c-42\n" +
			"  bizatlas agent ratios analyze --params '{\"company_id\":\"c-42\",\"years\":5}'",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New(errors.ErrCodeBadRequest, "expected no arguments or <agent> <action>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				cfg, err := cliCtx.ConfigOrDefaults()
				if err != nil {
					return err
				}
				catalog, err := agents.LoadCatalog(cfg.Agents.CatalogPath)
				if err != nil {
					return err
				}
				return PrintResult(cmd, catalogListing{catalog: catalog})
			}

			cfg, err := cliCtx.Config()
			if err != nil {
				return err
			}
			catalog, err := agents.LoadCatalog(cfg.Agents.CatalogPath)
			if err != nil {
				return err
			}
			_, action, err := catalog.Lookup(args[0], args[1])
			if err != nil {
				return err
			}
			params, err := parseParams(action, opts.paramsJSON, opts.params)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if cliCtx.Options.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cliCtx.Options.Timeout)
				defer cancel()
			}
			a, err := newApp(cfg, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.agentService(ctx)
			if err != nil {
				return err
			}
			return invokeAgent(cmd, svc, agents.Request{Agent: args[0], Action: args[1], Params: params})
		},
	}
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "action parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.paramsJSON, "params", "", "action parameters as a JSON object")
	return cmd
}

// invokeAgent prints whatever result the run produced, including a failed
// parse, before returning the run error.
func invokeAgent(cmd *cobra.Command, runner agentRunner, req agents.Request) error {
	res, err := runner.Run(cmd.Context(), req)
	if res != nil {
		if perr := PrintResult(cmd, agentResult{res}); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// parseParams merges --params with --param pairs; pairs win.  Pair values
// of non-string parameters are decoded as JSON so "years=5" is a number.
func parseParams(action *agents.Action, raw string, pairs []string) (map[string]any, error) {
	params := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeAgentParamsInvalid, "--params is not a JSON object")
		}
	}

	types := make(map[string]string, len(action.Params))
	for _, p := range action.Params {
		types[p.Name] = p.Type
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf(errors.ErrCodeAgentParamsInvalid, "parameter %q is not key=value", pair)
		}
		if t, declared := types[key]; !declared || t == agents.ParamString {
			params[key] = value
			continue
		}
		dec := json.NewDecoder(strings.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, errors.Newf(errors.ErrCodeAgentParamsInvalid, "parameter %s: %q is not a %s", key, value, types[key])
		}
		params[key] = v
	}
	return params, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Result rendering
// ─────────────────────────────────────────────────────────────────────────────

type agentResult struct {
	*agents.Result
}

func (r agentResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s %s (run %s", r.Agent, r.Action, r.Status, r.RunID)
	if r.Model != "" {
		fmt.Fprintf(&sb, ", model %s", r.Model)
	}
	if r.Cached {
		sb.WriteString(", cached")
	}
	sb.WriteString(")")
	if len(r.Data) > 0 {
		var pretty strings.Builder
		var v any
		if json.Unmarshal(r.Data, &v) == nil {
			b, _ := json.MarshalIndent(v, "", "  ")
			pretty.Write(b)
		} else {
			pretty.Write(r.Data)
		}
		sb.WriteString("\n")
		sb.WriteString(pretty.String())
	}
	return sb.String()
}

type catalogListing struct {
	catalog *agents.Catalog
}

func (l catalogListing) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.catalog.Agents)
}

func (l catalogListing) TableHeaders() []string {
	return []string{"AGENT", "ACTION", "PARAMS", "DESCRIPTION"}
}

func (l catalogListing) TableRows() [][]string {
	var rows [][]string
	for _, name := range l.catalog.Names() {
		agent := l.catalog.Agents[name]
		for _, an := range agent.ActionNames() {
			act := agent.Actions[an]
			params := make([]string, 0, len(act.Params))
			for _, p := range act.Params {
				s := p.Name + ":" + p.Type
				if p.Required {
					s += "!"
				}
				params = append(params, s)
			}
			sort.Strings(params)
			rows = append(rows, []string{name, an, strings.Join(params, ","), act.Description})
		}
	}
	return rows
}

//Personal.AI order the ending
