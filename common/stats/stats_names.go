package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/************************* Healing monitor metrics **************************/
	/*
		number of command monitors created since startup
	*/
	HealingMonitorsCreatedCounter = "monitorsCreatedCounter"

	/*
		number of command monitors currently polling
	*/
	HealingMonitorsRunningGauge = "monitorsRunningGauge"

	/*
		time spent in one decision cycle of a command monitor
	*/
	HealingTickLatency_ms = "tickLatency_ms"

	/*
		current median of each phase boundary, in milliseconds
	*/
	HealingSetupMedianGauge_ms     = "setupMedian_ms"
	HealingInputMedianGauge_ms     = "inputMedian_ms"
	HealingExecutionMedianGauge_ms = "executionMedian_ms"
	HealingUploadMedianGauge_ms    = "uploadMedian_ms"

	/*
		number of samples rejected because their duration was negative
	*/
	HealingRejectedSamplesCounter = "rejectedSamplesCounter"

	/*
		number of invocations skipped because a replica was in a transitional state
	*/
	HealingInvocationsSkippedCounter = "invocationsSkippedCounter"

	/*
		number of REPLICATE requests written
	*/
	HealingReplicateRequestsCounter = "replicateRequestsCounter"

	/*
		number of KILL_REPLICA requests written
	*/
	HealingKillReplicaRequestsCounter = "killReplicaRequestsCounter"

	/*
		number of KILL requests written while aborting
	*/
	HealingKillRequestsCounter = "killRequestsCounter"

	/*
		number of held jobs force-resolved while aborting
	*/
	HealingHeldResolvedCounter = "heldResolvedCounter"

	/*
		number of store errors seen during decision cycles
	*/
	HealingStoreErrorsCounter = "storeErrorsCounter"

	/*
		percentage of failed jobs of a command
	*/
	HealingJobErrorRateGauge = "jobErrorRate"

	/*
		percentage of invocations of a command with at least one failed job
	*/
	HealingInvocationErrorRateGauge = "invocationErrorRate"

	/*
		1 once a command entered aborting mode
	*/
	HealingAbortingGauge = "abortingGauge"

	/************************* Simulator metrics **************************/
	/*
		number of replicas the simulated engine spawned
	*/
	SimulatorReplicasSpawnedCounter = "replicasSpawnedCounter"

	/*
		number of jobs the simulated engine cancelled
	*/
	SimulatorJobsCancelledCounter = "jobsCancelledCounter"

	/*
		number of invocations completed by the simulated grid
	*/
	SimulatorInvocationsCompletedCounter = "invocationsCompletedCounter"
)
