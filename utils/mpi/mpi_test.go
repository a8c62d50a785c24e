package mpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCallRecord(t *testing.T) {
	first := NewCallRecord(OP_SEND, 2, PeerParameters("dest", 0, 7))
	second := NewCallRecord(OP_SEND, 2, nil)

	assert.Equal(t, "MPI_Send", first.OpName)
	assert.Equal(t, 2, first.NodeId)
	assert.Equal(t, map[string]string{"dest": "0", "tag": "7"}, first.Parameters)
	assert.NotEqual(t, first.Id, second.Id)
	assert.NotNil(t, second.Parameters)
}

func TestCollectiveOperations(t *testing.T) {
	assert.True(t, COLLECTIVE_OPERATIONS[MPI_OPS[OP_FINALIZE]])
	assert.True(t, COLLECTIVE_OPERATIONS[MPI_OPS[OP_BARRIER]])
	assert.False(t, COLLECTIVE_OPERATIONS[MPI_OPS[OP_SEND]])
}
