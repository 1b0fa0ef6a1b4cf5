package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/log/hooks"
)

// Self-healing daemon for GASW workflow jobs
//	Supported commands: (see "-h" for all options)
//		run [--config <policy file>] [--admin_addr <host:port>]
//		simulate [--invocations N] [--stragglers F] ...
//		policy [--config <policy file>]
//	Global flags:
// 		--log_level [<error|info|debug> level and above should be logged]
//
// Variables from a .env file in the working directory are loaded into the
// environment first, ex: HEALING_DATABASE_URL.

func main() {
	log.AddHook(hooks.NewContextHook())

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	if err := newCLI().Execute(); err != nil {
		log.Fatal("Error running healingd ", err)
	}
}
