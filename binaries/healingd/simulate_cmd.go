package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/simulator"
)

type simulateCmd struct {
	configPath  string
	sim         simulator.Config
	showMetrics bool
}

func (c *simulateCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "simulate",
		Short: "Run the healing policy against a synthetic grid and print a summary",
	}
	c.sim = simulator.DefaultConfig()
	f := r.Flags()
	f.StringVar(&c.configPath, "config", "", "healing policy file (.conf, .properties, .yaml or .json)")
	f.StringVar(&c.sim.Command, "command", c.sim.Command, "simulated command")
	f.IntVar(&c.sim.Invocations, "invocations", c.sim.Invocations, "number of invocations")
	f.DurationVar(&c.sim.Durations[domain.Setup], "setup", c.sim.Durations[domain.Setup], "nominal setup duration")
	f.DurationVar(&c.sim.Durations[domain.InputTransfer], "input", c.sim.Durations[domain.InputTransfer], "nominal input transfer duration")
	f.DurationVar(&c.sim.Durations[domain.Execution], "execution", c.sim.Durations[domain.Execution], "nominal execution duration")
	f.DurationVar(&c.sim.Durations[domain.Upload], "upload", c.sim.Durations[domain.Upload], "nominal upload duration")
	f.Float64Var(&c.sim.Jitter, "jitter", c.sim.Jitter, "relative spread of durations")
	f.Float64Var(&c.sim.StragglerFraction, "stragglers", c.sim.StragglerFraction, "share of straggling invocations")
	f.Float64Var(&c.sim.StragglerFactor, "straggler_factor", c.sim.StragglerFactor, "execution slowdown of stragglers")
	f.Float64Var(&c.sim.ErrorFraction, "errors", c.sim.ErrorFraction, "share of invocations whose first job fails")
	f.DurationVar(&c.sim.Tick, "tick", c.sim.Tick, "simulated time between monitor steps")
	f.DurationVar(&c.sim.MaxDuration, "max_duration", c.sim.MaxDuration, "simulated time limit")
	f.Int64Var(&c.sim.Seed, "seed", c.sim.Seed, "random seed")
	f.BoolVar(&c.showMetrics, "metrics", false, "also print the collected metrics")
	return r
}

func (c *simulateCmd) run(cmd *cobra.Command, args []string) error {
	stat := stats.DefaultStatsReceiver()
	s, err := simulator.New(c.sim, config.Load(c.configPath), stat)
	if err != nil {
		return err
	}
	summary, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	if c.showMetrics {
		fmt.Fprintln(cmd.OutOrStdout(), string(stat.Render(true)))
	}
	return nil
}
