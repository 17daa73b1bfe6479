package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
)

// geometryInfo is the printed description of the chamber.
type geometryInfo struct {
	SuperLayers int                    `json:"super_layers" yaml:"super_layers"`
	Layers      int                    `json:"layers" yaml:"layers"`
	Wires       int                    `json:"wires" yaml:"wires"`
	Params      l1wires.TopologyParams `json:"params" yaml:"params"`
}

func newGeometryCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Print the chamber geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, geo, err := root.setup()
			if err != nil {
				return err
			}
			info := describeGeometry(geo.Topology)
			switch format {
			case "yaml", "yml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(info); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func describeGeometry(t *l1wires.Topology) geometryInfo {
	info := geometryInfo{SuperLayers: t.NSuperLayers(), Layers: t.NLayers(), Params: t.Params()}
	for _, l := range t.Layers() {
		info.Wires += l.NWires
	}
	return info
}
