package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cli struct {
	rootCmd  *cobra.Command
	logLevel string
}

func newCLI() *cobra.Command {
	c := &cli{}
	c.rootCmd = &cobra.Command{
		Use:               "healingd",
		Short:             "healingd replicates and kills straggling GASW jobs",
		SilenceUsage:      true,
		PersistentPreRunE: c.setLogLevel,
	}
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")

	c.addCmd(&runCmd{})
	c.addCmd(&simulateCmd{})
	c.addCmd(&policyCmd{})
	return c.rootCmd
}

func (c *cli) setLogLevel(*cobra.Command, []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return errors.Wrap(err, "log_level")
	}
	log.SetLevel(level)
	return nil
}

func (c *cli) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(cmd *cobra.Command, args []string) error
}
