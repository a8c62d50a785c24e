package websocket

type MessageType string

const (
	JobStarted     MessageType = "jobStarted"
	NodeRegistered MessageType = "nodeRegistered"
	NodeFinalized  MessageType = "nodeFinalized"
	MPICall        MessageType = "mpiCall"
	JobFinished    MessageType = "jobFinished"
)

type Message struct {
	Type  MessageType
	Value any
}

type JobStartedValue struct {
	JobID  string
	Size   int
	Target string
}

type NodeValue struct {
	Rank     int
	Pid      int
	Hostname string
}

type JobFinishedValue struct {
	JobID string
	Error string
}

func (h *Hub) SendJobStarted(jobID string, size int, target string) {
	h.Publish(JobStarted, JobStartedValue{JobID: jobID, Size: size, Target: target})
}

func (h *Hub) SendJobFinished(jobID string, err error) {
	value := JobFinishedValue{JobID: jobID}
	if err != nil {
		value.Error = err.Error()
	}
	h.Publish(JobFinished, value)
}
