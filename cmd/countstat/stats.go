package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/countstat/pkg/analytics"
)

type statDoc struct {
	Property     string   `yaml:"property"`
	Kind         string   `yaml:"kind"`
	Output       string   `yaml:"output"`
	Frequency    string   `yaml:"frequency"`
	Interval     string   `yaml:"interval"`
	GroupBy      string   `yaml:"group_by,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

func describeStat(stat *analytics.CountStat) statDoc {
	doc := statDoc{
		Property:     stat.Property,
		Kind:         stat.Kind.String(),
		Output:       stat.Collector.Output.String(),
		Frequency:    stat.Frequency.String(),
		Interval:     stat.Interval.String(),
		GroupBy:      stat.Collector.GroupBy.String(),
		Dependencies: stat.Dependencies,
	}
	if stat.IsGauge() {
		doc.Interval = "gauge"
	}
	return doc
}

func newListStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-stats",
		Short: "Print the stat registry as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []statDoc
			for _, stat := range analytics.DefaultRegistry().Stats() {
				docs = append(docs, describeStat(stat))
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(docs); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
