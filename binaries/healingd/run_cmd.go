package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/endpoints"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/server"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store/postgres"
)

const defaultAdminAddr = "localhost:9091"

type runCmd struct {
	configPath string
	adminAddr  string
	since      time.Duration
	poll       time.Duration
}

func (c *runCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run",
		Short: "Monitor the jobs recorded in the workflow engine database",
		Long: "Monitor the jobs recorded in the workflow engine database.\n" +
			"The database is configured by HEALING_DATABASE_* variables. SIGHUP reloads the policy file.",
	}
	r.Flags().StringVar(&c.configPath, "config", "", "healing policy file (.conf, .properties, .yaml or .json)")
	r.Flags().StringVar(&c.adminAddr, "admin_addr", defaultAdminAddr, "address of the admin http server")
	r.Flags().DurationVar(&c.since, "since", 0, "replay jobs and checkpoints recorded this long before startup")
	r.Flags().DurationVar(&c.poll, "poll", 0, "database polling interval, the policy sleep time if zero")
	return r
}

func (c *runCmd) run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := config.Load(c.configPath)
	dbConfig, err := postgres.ConfigFromEnv()
	if err != nil {
		return err
	}
	db, err := postgres.Open(ctx, dbConfig)
	if err != nil {
		return errors.Wrap(err, "connecting to the workflow engine database")
	}
	defer db.Close()

	st := postgres.NewStore(db)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	stat := stats.DefaultStatsReceiver()
	registry := server.NewRegistry(st, st, policy, stat, server.RegistryConfiguration{})
	listener := server.NewListener(registry, st)
	listener.Load()
	defer listener.Terminate()

	poll := c.poll
	if poll <= 0 {
		poll = policy.SleepTime
	}
	bridge := server.NewBridge(listener, st, time.Now().Add(-c.since), nil)

	reload := func() {
		p, err := config.Read(c.configPath)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Error("[Healing] keeping current policy")
			return
		}
		registry.Reload(p)
	}

	admin := endpoints.NewServer(c.adminAddr, stat)
	admin.AddJSON("/admin/commands", func() (interface{}, error) {
		return registry.Monitors(), nil
	})
	admin.AddJSON("/admin/policy", func() (interface{}, error) {
		return registry.Policy().String(), nil
	})
	admin.AddHandler(http.MethodPost, "/admin/reload", func(w http.ResponseWriter, r *http.Request) {
		reload()
		w.WriteHeader(http.StatusNoContent)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx, poll) })
	g.Go(func() error { return admin.Serve(gctx) })
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				reload()
			}
		}
	})
	return g.Wait()
}
