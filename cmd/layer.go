package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/export"
	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/pipeline"
)

var (
	layerState  string
	layerCounty string
	layerLevel  string
	layerFormat string
	layerTop    int
	layerOutput string
)

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "Fetch and join one layer, then write it as GeoJSON, JSON, CSV or XLSX",
	Example: `  vacancy-map layer --level state
  vacancy-map layer --level county --state 06 --format csv
  vacancy-map layer --level tract --state 06 --county 037 --format xlsx -o la-tracts.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := layerSelection(layerState, layerCounty, layerLevel)
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(layerFormat)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("top") {
			cfg.Map.TopN = layerTop
		}
		env, err := initEnv(cfg, "layer")
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if layerOutput != "" {
			f, err := os.Create(layerOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", layerOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		} else if format == export.FormatXLSX {
			return eris.New("xlsx output needs --output")
		}

		return writeLayer(cmd.Context(), cmd.ErrOrStderr(), env.Pipeline, sel, format, env.Ramp, out)
	},
}

// layerSelection validates flags the way the selection controller would.
func layerSelection(state, county, level string) (model.Selection, error) {
	lvl, err := model.ParseLevel(level)
	if err != nil {
		return model.Selection{}, err
	}
	s, c, err := geoid.Required(lvl, state, county)
	if err != nil {
		if (lvl.NeedsState() && state == "") || (lvl.NeedsCounty() && county == "") {
			return model.Selection{}, model.WrapError(model.ErrPreconditionNotMet, err, "%s level needs --state%s", lvl, countyHint(lvl))
		}
		return model.Selection{}, err
	}
	return model.Selection{StateID: s, CountyID: c, Level: lvl}, nil
}

func countyHint(l model.GeoLevel) string {
	if l.NeedsCounty() {
		return " and --county"
	}
	return ""
}

func writeLayer(ctx context.Context, errOut io.Writer, loader pipeline.Loader, sel model.Selection, format export.Format, ramp *choropleth.Ramp, out io.Writer) error {
	layer, err := loader.Load(ctx, sel)
	if err != nil {
		fmt.Fprintln(errOut, model.UserMessage(err))
		return err
	}
	return export.Write(out, format, layer, ramp)
}

func init() {
	layerCmd.Flags().StringVar(&layerState, "state", "", "state FIPS code, e.g. 06")
	layerCmd.Flags().StringVar(&layerCounty, "county", "", "county FIPS code within the state, e.g. 037")
	layerCmd.Flags().StringVar(&layerLevel, "level", "state", "geography level: state, county, tract or block")
	layerCmd.Flags().StringVar(&layerFormat, "format", "geojson", "output format: geojson, json, csv or xlsx")
	layerCmd.Flags().IntVar(&layerTop, "top", 10, "number of areas in the ranked table (0 lists all)")
	layerCmd.Flags().StringVarP(&layerOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(layerCmd)
}
