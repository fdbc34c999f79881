package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/application/viewport"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

type filterOptions struct {
	input      string
	filterJSON string
	filterFile string
	bbox       string
	zoom       float64
}

// NewFilterCmd runs the filter and cluster pipeline over a JSON export
// without any backing services.
func NewFilterCmd() *cobra.Command {
	opts := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter and cluster companies from a JSON file",
		Long: "Reads companies from --input, either a JSON array of companies or an object\n" +
			"{\"entities\": [...], \"scores\": {id: pct}}, applies a filter and prints the\n" +
			"matching companies, or the visible markers when --bbox is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFilter(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "companies JSON file (required)")
	f.StringVar(&opts.filterJSON, "filter", "", "filter as inline JSON")
	f.StringVar(&opts.filterFile, "filter-file", "", "filter JSON file")
	f.StringVar(&opts.bbox, "bbox", "", "viewport west,south,east,north")
	f.Float64Var(&opts.zoom, "zoom", 10, "viewport zoom, used with --bbox")
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsMutuallyExclusive("filter", "filter-file")
	return cmd
}

func runFilter(cmd *cobra.Command, opts *filterOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg, err := cliCtx.ConfigOrDefaults()
	if err != nil {
		return err
	}

	entities, scores, err := readEntities(opts.input)
	if err != nil {
		return err
	}
	spec, err := readFilter(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cliCtx.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliCtx.Options.Timeout)
		defer cancel()
	}

	mapCfg := viewport.ConfigFromMap(cfg.Map)
	mapCfg.MaxSessions = 0
	registry := viewport.NewRegistry(mapCfg, geoentity.NewStaticSource(entities, scores), nil, cliCtx.Logger)
	defer registry.Shutdown()

	session, err := registry.Create()
	if err != nil {
		return err
	}
	summary, err := session.ApplyFilter(ctx, spec)
	if err != nil {
		return err
	}
	cliCtx.Logger.Debug("Filter applied",
		logging.String("hash", summary.Key),
		logging.Int("filtered", summary.Filtered),
		logging.Int("total", summary.Total),
	)

	if opts.bbox == "" {
		matched := session.Entities()
		if cliCtx.OutputFormat == "geojson" {
			return PrintResult(cmd, cluster.EntityFeatures(matched, scores))
		}
		return PrintResult(cmd, filterResult{Summary: summary, Entities: matched})
	}

	bounds, err := cluster.ParseBBox(opts.bbox)
	if err != nil {
		return err
	}
	visible, err := session.Visible(bounds, opts.zoom)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "geojson" {
		return PrintResult(cmd, visible.FeatureCollection())
	}
	return PrintResult(cmd, visibleResult{Summary: summary, Visible: visible})
}

type entityFile struct {
	Entities []geoentity.Entity `json:"entities"`
	Scores   geoentity.Scores   `json:"scores"`
}

// readEntities accepts a bare array or an {entities, scores} object.
func readEntities(path string) ([]geoentity.Entity, geoentity.Scores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read input")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entities []geoentity.Entity
		if err := json.Unmarshal(trimmed, &entities); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeBadRequest, "input is not a company array")
		}
		return entities, nil, nil
	}
	var f entityFile
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeBadRequest, "input is not a company export")
	}
	return f.Entities, f.Scores, nil
}

func readFilter(opts *filterOptions) (geoentity.Filter, error) {
	var spec geoentity.Filter
	raw := []byte(opts.filterJSON)
	if opts.filterFile != "" {
		data, err := os.ReadFile(opts.filterFile)
		if err != nil {
			return spec, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read filter file")
		}
		raw = data
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return spec, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid filter JSON")
	}
	return spec, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Result rendering
// ─────────────────────────────────────────────────────────────────────────────

type filterResult struct {
	Summary  *viewport.FilterSummary `json:"summary"`
	Entities []geoentity.Entity      `json:"entities"`
}

func (r filterResult) String() string {
	return fmt.Sprintf("%d of %d companies match (%d with coordinates)",
		r.Summary.Filtered, r.Summary.Total, r.Summary.Clusterable)
}

func (r filterResult) TableHeaders() []string {
	return []string{"ID", "NAME", "SECTOR", "REGION", "LAT", "LNG"}
}

func (r filterResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		rows = append(rows, []string{e.ID, e.Name, e.Sector, e.Parroquia, coord(e.Lat), coord(e.Lng)})
	}
	return rows
}

type visibleResult struct {
	Summary *viewport.FilterSummary `json:"summary"`
	Visible *cluster.Visible        `json:"visible"`
}

func (r visibleResult) String() string {
	if r.Visible.BelowMinZoom {
		return fmt.Sprintf("zoom %g is below the minimum visible zoom; no markers", r.Visible.Zoom)
	}
	clusters := 0
	for _, it := range r.Visible.Items {
		if it.Cluster {
			clusters++
		}
	}
	s := fmt.Sprintf("%d markers (%d clusters) at zoom %g", len(r.Visible.Items), clusters, r.Visible.Zoom)
	if r.Visible.Truncated {
		s += fmt.Sprintf(", truncated from %d", r.Visible.Total)
	}
	return s
}

func (r visibleResult) TableHeaders() []string {
	return []string{"KIND", "ID", "COUNT", "NAME", "LAT", "LNG"}
}

func (r visibleResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Visible.Items))
	for _, it := range r.Visible.Items {
		kind, id := "company", it.EntityID
		if it.Cluster {
			kind, id = "cluster", strconv.Itoa(it.ClusterID)
		}
		rows = append(rows, []string{
			kind, id, cluster.AbbreviateCount(it.Count), it.Name,
			strconv.FormatFloat(it.Lat, 'f', 5, 64), strconv.FormatFloat(it.Lng, 'f', 5, 64),
		})
	}
	return rows
}

func coord(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 5, 64)
}

//Personal.AI order the ending
