package mpi

// Environment passed by the launcher to every process of a job.
const (
	EnvLauncherAddress = "MPI_LAUNCHER_ADDR"
	EnvRank            = "MPI_WORLD_RANK"
	EnvSize            = "MPI_WORLD_SIZE"
	EnvJobID           = "MPI_JOB_ID"
	EnvLogLevel        = "MPI_LOG_LEVEL"
	EnvRemoteLog       = "MPI_REMOTE_LOG"
)
