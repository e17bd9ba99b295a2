package config

type WorkerKeyStruct struct {
	SweeperLock    string
	SweeperLastRun string
}

var WorkerKey = &WorkerKeyStruct{
	SweeperLock:    "worker:expiration_sweeper:lock",
	SweeperLastRun: "worker:expiration_sweeper:last_run",
}
