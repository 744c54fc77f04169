package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/inputfile"
	"github.com/agentic-research/yieldtree/internal/units"
)

func newConvertCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "convert [input.ayo]",
		Short: "Translate an AYO input file into an EXOSIMS JSON script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uctx := units.NewContext()
			f, err := inputfile.ParseFile(args[0], inputfile.Options{
				Units:  uctx,
				Logger: o.logger,
				Name:   args[0],
			})
			if err != nil {
				return err
			}
			script, err := inputfile.ExportEXOSIMS(f, uctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output, script)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the script here instead of stdout")
	return cmd
}
