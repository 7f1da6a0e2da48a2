package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/vacancy-map/internal/server"
)

var statesCounties string

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "List state FIPS codes, or a state's counties with --counties",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cfg, "layer")
		if err != nil {
			return err
		}

		var opts []server.Option
		if statesCounties != "" {
			opts, err = server.CountyOptions(cmd.Context(), env.Census, statesCounties)
		} else {
			opts, err = server.StateOptions(cmd.Context(), env.Geometry.States())
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, o := range opts {
			fmt.Fprintf(w, "%s\t%s\n", o.ID, o.Name)
		}
		return w.Flush()
	},
}

func init() {
	statesCmd.Flags().StringVar(&statesCounties, "counties", "", "list the counties of this state instead")
	rootCmd.AddCommand(statesCmd)
}
