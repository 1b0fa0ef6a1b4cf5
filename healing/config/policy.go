// Package config provides the HealingPolicy consumed by command monitors and
// loads it from properties, YAML or JSON files and the environment.
package config

import (
	"fmt"
	"time"
)

// Property keys, shared with the workflow engine configuration file.
const (
	KeySleepTime                    = "plugin.healing.sleeptime"
	KeyBlockedCoefficient           = "plugin.healing.blocked.coefficient"
	KeyMaxReplicas                  = "plugin.healing.max.replicas"
	KeyStatsChangePercentage        = "plugin.healing.stats.changePercentage"
	KeyMaxErrorJobPercentage        = "plugin.healing.max.errorJobPercentage"
	KeyMaxErrorInvocationPercentage = "plugin.healing.max.errorInvocationPercentage"
	KeyMinInvocations               = "plugin.healing.min.invocations"
	KeySampleWindow                 = "plugin.healing.sample.window"
	KeyMinSamples                   = "plugin.healing.min.samples"
	KeyRetryCount                   = "gasw.default.retrycount"
)

const (
	DefaultSleepTime                    = 15 * time.Second
	DefaultBlockedCoefficient           = 2.0
	DefaultMaxReplicas                  = 2
	DefaultStatsChangePercentage        = 10
	DefaultMaxErrorJobPercentage        = 60.0
	DefaultMaxErrorInvocationPercentage = 99.9
	DefaultMinInvocations               = 100
	DefaultSampleWindow                 = 1000
	DefaultMinSamples                   = 2
	DefaultRetryCount                   = 5
)

// HealingPolicy holds the thresholds read by a command monitor on every tick.
// It is a plain value: monitors keep their own copy and only see a new one
// when it is explicitly reloaded.
//
// SleepTime - polling interval of each command monitor.
//
// BlockedCoefficient - ratio above which a replica is considered blocked,
//
//	either against its best sibling or against the sum of the medians.
//
// MaxReplicas - cap on concurrently active replicas of an invocation.
//
// StatsChangePercentage - median drift that triggers a new stats log line.
//
// MaxErrorJobPercentage, MaxErrorInvocationPercentage -
//
//	failure rates above which the command aborts all of its work.
//
// MinInvocations - invocations required before abort decisions are considered.
//
// RetryCount - failed replicas an invocation may accumulate before it stops
//
//	being replicated, mirrors the workflow engine retry count.
//
// SampleWindow - number of recent samples kept per phase boundary.
//
// MinSamples - upload samples required before replication decisions are made.
type HealingPolicy struct {
	SleepTime                    time.Duration
	BlockedCoefficient           float64
	MaxReplicas                  int
	StatsChangePercentage        int
	MaxErrorJobPercentage        float64
	MaxErrorInvocationPercentage float64
	MinInvocations               int
	RetryCount                   int
	SampleWindow                 int
	MinSamples                   int
}

func DefaultHealingPolicy() HealingPolicy {
	return HealingPolicy{
		SleepTime:                    DefaultSleepTime,
		BlockedCoefficient:           DefaultBlockedCoefficient,
		MaxReplicas:                  DefaultMaxReplicas,
		StatsChangePercentage:        DefaultStatsChangePercentage,
		MaxErrorJobPercentage:        DefaultMaxErrorJobPercentage,
		MaxErrorInvocationPercentage: DefaultMaxErrorInvocationPercentage,
		MinInvocations:               DefaultMinInvocations,
		RetryCount:                   DefaultRetryCount,
		SampleWindow:                 DefaultSampleWindow,
		MinSamples:                   DefaultMinSamples,
	}
}

// Sanitized replaces every out of range value by its default and reports which
// keys were replaced.
func (p HealingPolicy) Sanitized() (HealingPolicy, []string) {
	d := DefaultHealingPolicy()
	var fixed []string
	if p.SleepTime <= 0 {
		p.SleepTime, fixed = d.SleepTime, append(fixed, KeySleepTime)
	}
	if p.BlockedCoefficient <= 0 {
		p.BlockedCoefficient, fixed = d.BlockedCoefficient, append(fixed, KeyBlockedCoefficient)
	}
	if p.MaxReplicas < 1 {
		p.MaxReplicas, fixed = d.MaxReplicas, append(fixed, KeyMaxReplicas)
	}
	if p.StatsChangePercentage < 0 || p.StatsChangePercentage > 100 {
		p.StatsChangePercentage, fixed = d.StatsChangePercentage, append(fixed, KeyStatsChangePercentage)
	}
	if p.MaxErrorJobPercentage <= 0 {
		p.MaxErrorJobPercentage, fixed = d.MaxErrorJobPercentage, append(fixed, KeyMaxErrorJobPercentage)
	}
	if p.MaxErrorInvocationPercentage <= 0 {
		p.MaxErrorInvocationPercentage, fixed = d.MaxErrorInvocationPercentage, append(fixed, KeyMaxErrorInvocationPercentage)
	}
	if p.MinInvocations < 0 {
		p.MinInvocations, fixed = d.MinInvocations, append(fixed, KeyMinInvocations)
	}
	if p.RetryCount < 0 {
		p.RetryCount, fixed = d.RetryCount, append(fixed, KeyRetryCount)
	}
	if p.SampleWindow < 1 {
		p.SampleWindow, fixed = d.SampleWindow, append(fixed, KeySampleWindow)
	}
	if p.MinSamples < 0 {
		p.MinSamples, fixed = d.MinSamples, append(fixed, KeyMinSamples)
	}
	return p, fixed
}

func (p HealingPolicy) String() string {
	return fmt.Sprintf("HealingPolicy: SleepTime: %s, BlockedCoefficient: %g, MaxReplicas: %d, StatsChangePercentage: %d, "+
		"MaxErrorJobPercentage: %g, MaxErrorInvocationPercentage: %g, MinInvocations: %d, RetryCount: %d, "+
		"SampleWindow: %d, MinSamples: %d",
		p.SleepTime, p.BlockedCoefficient, p.MaxReplicas, p.StatsChangePercentage, p.MaxErrorJobPercentage,
		p.MaxErrorInvocationPercentage, p.MinInvocations, p.RetryCount, p.SampleWindow, p.MinSamples)
}
