package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, ex: HEALING_PLUGIN_HEALING_MAX_REPLICAS.
const EnvPrefix = "HEALING"

// Read parses the policy from path, which may be a .properties, .yaml, .yml or
// .json file. An empty path reads defaults and environment overrides only.
// Out of range values are replaced by defaults and logged.
func Read(path string) (HealingPolicy, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" || ext == "conf" {
			v.SetConfigType("properties")
		}
		if err := v.ReadInConfig(); err != nil {
			return DefaultHealingPolicy(), errors.Wrapf(err, "reading healing configuration %s", path)
		}
	}

	p := HealingPolicy{
		SleepTime:                    time.Duration(v.GetInt(KeySleepTime)) * time.Second,
		BlockedCoefficient:           v.GetFloat64(KeyBlockedCoefficient),
		MaxReplicas:                  v.GetInt(KeyMaxReplicas),
		StatsChangePercentage:        v.GetInt(KeyStatsChangePercentage),
		MaxErrorJobPercentage:        v.GetFloat64(KeyMaxErrorJobPercentage),
		MaxErrorInvocationPercentage: v.GetFloat64(KeyMaxErrorInvocationPercentage),
		MinInvocations:               v.GetInt(KeyMinInvocations),
		RetryCount:                   v.GetInt(KeyRetryCount),
		SampleWindow:                 v.GetInt(KeySampleWindow),
		MinSamples:                   v.GetInt(KeyMinSamples),
	}
	p, fixed := p.Sanitized()
	for _, key := range fixed {
		log.WithFields(log.Fields{"key": key}).Warn("[Healing] invalid configuration value, using default")
	}
	return p, nil
}

// Load is Read without failure: any error is logged and the defaults are returned.
func Load(path string) HealingPolicy {
	p, err := Read(path)
	if err != nil {
		log.Errorf("[Healing] Error initializing HealingConfiguration, using defaults: %v", err)
		return DefaultHealingPolicy()
	}
	return p
}

func newViper() *viper.Viper {
	// Property keys contain dots of their own, keep them flat.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	d := DefaultHealingPolicy()
	v.SetDefault(KeySleepTime, int(d.SleepTime/time.Second))
	v.SetDefault(KeyBlockedCoefficient, d.BlockedCoefficient)
	v.SetDefault(KeyMaxReplicas, d.MaxReplicas)
	v.SetDefault(KeyStatsChangePercentage, d.StatsChangePercentage)
	v.SetDefault(KeyMaxErrorJobPercentage, d.MaxErrorJobPercentage)
	v.SetDefault(KeyMaxErrorInvocationPercentage, d.MaxErrorInvocationPercentage)
	v.SetDefault(KeyMinInvocations, d.MinInvocations)
	v.SetDefault(KeyRetryCount, d.RetryCount)
	v.SetDefault(KeySampleWindow, d.SampleWindow)
	v.SetDefault(KeyMinSamples, d.MinSamples)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
