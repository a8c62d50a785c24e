package nodeconnection

import (
	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/orchestrator/gui/websocket"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

// NodeReporter is the rpc service nodes call into.
type NodeReporter struct {
	registry *Registry
}

func NewNodeReporter(registry *Registry) *NodeReporter {
	return &NodeReporter{registry}
}

func (r *NodeReporter) Register(args mpiutils.RegisterArgs, reply *mpiutils.RegisterReply) error {
	if err := r.registry.Register(args); err != nil {
		logger.Warn("rejected registration of process %d: %v", args.Rank, err)
		return err
	}

	reply.Size = r.registry.Size()
	reply.JobID = r.registry.JobID()
	return nil
}

func (r *NodeReporter) Barrier(args mpiutils.RankArgs, reply *int) error {
	return r.registry.Barrier(args.Rank)
}

func (r *NodeReporter) Send(args mpiutils.SendArgs, reply *int) error {
	return r.registry.Send(args)
}

func (r *NodeReporter) Recv(args mpiutils.RecvArgs, reply *mpiutils.RecvReply) error {
	payload, err := r.registry.Recv(args)
	if err != nil {
		return err
	}
	reply.Payload = payload
	return nil
}

func (r *NodeReporter) Finalize(args mpiutils.RankArgs, reply *int) error {
	return r.registry.Finalize(args.Rank)
}

func (r *NodeReporter) MPICall(callRecord mpiutils.MPICallRecord, reply *int) error {
	if mpiutils.COLLECTIVE_OPERATIONS[callRecord.OpName] {
		logger.Verbose("node %d entered collective %s", callRecord.NodeId, callRecord.OpName)
	} else {
		logger.Debug("node %d: %s %v", callRecord.NodeId, callRecord.OpName, callRecord.Parameters)
	}
	r.registry.publisher.Publish(websocket.MPICall, callRecord)
	return nil
}
