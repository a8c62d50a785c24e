package mpi

import (
	"strconv"

	"github.com/google/uuid"
)

type MPICallRecord struct {
	Id         string
	OpName     string
	Parameters map[string]string
	NodeId     int
}

type MPI_OPCODE int

const (
	OP_INIT MPI_OPCODE = iota
	OP_SEND
	OP_RECV
	OP_BARRIER
	OP_FINALIZE
)

var MPI_OPS = map[MPI_OPCODE]string{
	OP_INIT:     "MPI_Init",
	OP_SEND:     "MPI_Send",
	OP_RECV:     "MPI_Recv",
	OP_BARRIER:  "MPI_Barrier",
	OP_FINALIZE: "MPI_Finalize",
}

var COLLECTIVE_OPERATIONS = map[string]bool{
	MPI_OPS[OP_BARRIER]:  true,
	MPI_OPS[OP_FINALIZE]: true,
}

func NewCallRecord(op MPI_OPCODE, nodeId int, parameters map[string]string) MPICallRecord {
	if parameters == nil {
		parameters = map[string]string{}
	}

	return MPICallRecord{
		Id:         uuid.NewString(),
		OpName:     MPI_OPS[op],
		Parameters: parameters,
		NodeId:     nodeId,
	}
}

// PeerParameters describes the peer and tag of a point-to-point call.
func PeerParameters(peerKey string, peer, tag int) map[string]string {
	return map[string]string{
		peerKey: strconv.Itoa(peer),
		"tag":   strconv.Itoa(tag),
	}
}
