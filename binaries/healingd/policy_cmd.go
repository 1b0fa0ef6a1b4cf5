package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
)

type policyCmd struct {
	configPath string
}

func (c *policyCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective healing policy",
	}
	r.Flags().StringVar(&c.configPath, "config", "", "healing policy file (.conf, .properties, .yaml or .json)")
	return r
}

func (c *policyCmd) run(cmd *cobra.Command, args []string) error {
	p, err := config.Read(c.configPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}
