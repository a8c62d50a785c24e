package mpi

// Arguments and replies of the NodeReporter rpc service.

// AbortedMessage is the rpc error text of calls released by an aborted job.
const AbortedMessage = "job aborted"

type RegisterArgs struct {
	Rank     int
	Pid      int
	Hostname string
}

type RegisterReply struct {
	Size  int
	JobID string
}

type RankArgs struct {
	Rank int
}

type SendArgs struct {
	Source  int
	Dest    int
	Tag     int
	Payload []byte
}

type RecvArgs struct {
	Source int
	Dest   int
	Tag    int
}

type RecvReply struct {
	Payload []byte
}
