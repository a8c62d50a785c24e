package nodeconnection

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/orchestrator/gui/websocket"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.MessageType
}

func (p *recordingPublisher) Publish(messageType websocket.MessageType, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, messageType)
}

func (p *recordingPublisher) count(messageType websocket.MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e == messageType {
			n++
		}
	}
	return n
}

func registerAll(t *testing.T, r *Registry) {
	t.Helper()
	for rank := 0; rank < r.Size(); rank++ {
		require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: rank, Pid: 1000 + rank, Hostname: "localhost"}))
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestRegister(t *testing.T) {
	publisher := &recordingPublisher{}
	r := NewRegistry("job", 3, publisher)

	require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 2, Pid: 12}))
	require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 0, Pid: 10}))
	assert.False(t, isClosed(r.AllRegistered()))

	err := r.Register(mpiutils.RegisterArgs{Rank: 2, Pid: 99})
	assert.ErrorIs(t, err, ErrDuplicateRank)

	assert.ErrorIs(t, r.Register(mpiutils.RegisterArgs{Rank: 3}), ErrInvalidRank)
	assert.ErrorIs(t, r.Register(mpiutils.RegisterArgs{Rank: -1}), ErrInvalidRank)

	require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 1, Pid: 11}))
	assert.True(t, isClosed(r.AllRegistered()))

	assert.Equal(t, []int{0, 1, 2}, r.GetRegisteredIds())
	assert.Equal(t, 3, publisher.count(websocket.NodeRegistered))
}

func TestFinalize(t *testing.T) {
	publisher := &recordingPublisher{}
	r := NewRegistry("job", 3, publisher)
	registerAll(t, r)

	assert.Equal(t, []int{0, 1, 2}, r.Unfinalized())

	require.NoError(t, r.Finalize(1))
	assert.Equal(t, []int{0, 2}, r.Unfinalized())
	assert.Equal(t, 1, publisher.count(websocket.NodeFinalized))

	assert.ErrorIs(t, r.Finalize(5), ErrInvalidRank)
}

func TestExited(t *testing.T) {
	r := NewRegistry("job", 2, nil)
	registerAll(t, r)
	require.NoError(t, r.Finalize(0))

	assert.NoError(t, r.Exited(0))
	assert.ErrorIs(t, r.Exited(1), ErrNotFinalized)
	assert.Empty(t, r.Departed())
	assert.False(t, isClosed(r.Incomplete()))
}

func TestExitedBeforeJoining(t *testing.T) {
	t.Run("nobody joins", func(t *testing.T) {
		r := NewRegistry("job", 2, nil)

		require.NoError(t, r.Exited(0))
		require.NoError(t, r.Exited(1))

		assert.Equal(t, []int{0, 1}, r.Departed())
		assert.False(t, isClosed(r.Incomplete()))
	})

	t.Run("joined first", func(t *testing.T) {
		r := NewRegistry("job", 3, nil)
		require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 0}))

		require.NoError(t, r.Exited(2))
		assert.True(t, isClosed(r.Incomplete()))
	})

	t.Run("joined later", func(t *testing.T) {
		r := NewRegistry("job", 3, nil)
		require.NoError(t, r.Exited(2))
		assert.False(t, isClosed(r.Incomplete()))

		require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 1}))
		assert.True(t, isClosed(r.Incomplete()))
		assert.False(t, isClosed(r.AllRegistered()))
	})
}

func TestFinalizeUnregistered(t *testing.T) {
	r := NewRegistry("job", 2, nil)
	assert.ErrorIs(t, r.Finalize(0), ErrUnknownRank)
}

func TestBarrier(t *testing.T) {
	r := NewRegistry("job", 4, nil)
	registerAll(t, r)

	// two generations in a row
	for generation := 0; generation < 2; generation++ {
		var passed sync.WaitGroup
		released := make(chan int, r.Size())

		for rank := 0; rank < r.Size()-1; rank++ {
			passed.Add(1)
			go func(rank int) {
				defer passed.Done()
				assert.NoError(t, r.Barrier(rank))
				released <- rank
			}(rank)
		}

		select {
		case rank := <-released:
			t.Fatalf("rank %d left the barrier before every rank arrived", rank)
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, r.Barrier(r.Size()-1))
		passed.Wait()
		assert.Len(t, released, r.Size()-1)
	}
}

func TestBarrierRejectsUnknownRank(t *testing.T) {
	r := NewRegistry("job", 2, nil)
	require.NoError(t, r.Register(mpiutils.RegisterArgs{Rank: 0}))

	assert.ErrorIs(t, r.Barrier(1), ErrUnknownRank)
	assert.ErrorIs(t, r.Barrier(7), ErrInvalidRank)
}

func TestAbortReleasesBlockedCalls(t *testing.T) {
	r := NewRegistry("job", 2, nil)
	registerAll(t, r)

	errs := make(chan error, 2)
	go func() { errs <- r.Barrier(0) }()
	go func() {
		_, err := r.Recv(mpiutils.RecvArgs{Source: 0, Dest: 1, Tag: 1})
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.Abort()
	r.Abort()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrAborted)
		case <-time.After(time.Second):
			t.Fatal("blocked call not released by Abort")
		}
	}

	assert.ErrorIs(t, r.Barrier(1), ErrAborted)
	assert.ErrorIs(t, r.Send(mpiutils.SendArgs{Source: 0, Dest: 1}), ErrAborted)
}

func TestSendRecv(t *testing.T) {
	r := NewRegistry("job", 3, nil)

	require.NoError(t, r.Send(mpiutils.SendArgs{Source: 0, Dest: 2, Tag: 5, Payload: []byte("a")}))
	require.NoError(t, r.Send(mpiutils.SendArgs{Source: 0, Dest: 2, Tag: 5, Payload: []byte("b")}))
	assert.Equal(t, 2, r.Undelivered())

	for _, want := range []string{"a", "b"} {
		got, err := r.Recv(mpiutils.RecvArgs{Source: 0, Dest: 2, Tag: 5})
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Zero(t, r.Undelivered())

	assert.ErrorIs(t, r.Send(mpiutils.SendArgs{Source: 0, Dest: 3}), ErrInvalidRank)
	assert.ErrorIs(t, r.Send(mpiutils.SendArgs{Source: 0, Dest: 1, Tag: -1}), ErrInvalidTag)

	_, err := r.Recv(mpiutils.RecvArgs{Source: -2, Dest: 1})
	assert.ErrorIs(t, err, ErrInvalidRank)
}

func TestNodeReporter(t *testing.T) {
	publisher := &recordingPublisher{}
	r := NewRegistry("job-42", 1, publisher)
	reporter := NewNodeReporter(r)

	var reply mpiutils.RegisterReply
	require.NoError(t, reporter.Register(mpiutils.RegisterArgs{Rank: 0, Pid: 1}, &reply))
	assert.Equal(t, 1, reply.Size)
	assert.Equal(t, "job-42", reply.JobID)

	assert.Error(t, reporter.Register(mpiutils.RegisterArgs{Rank: 0, Pid: 2}, &reply))

	require.NoError(t, reporter.Send(mpiutils.SendArgs{Source: 0, Dest: 0, Tag: 1, Payload: []byte("self")}, new(int)))

	var recv mpiutils.RecvReply
	require.NoError(t, reporter.Recv(mpiutils.RecvArgs{Source: 0, Dest: 0, Tag: 1}, &recv))
	assert.Equal(t, "self", string(recv.Payload))

	require.NoError(t, reporter.Barrier(mpiutils.RankArgs{Rank: 0}, new(int)))
	require.NoError(t, reporter.MPICall(mpiutils.NewCallRecord(mpiutils.OP_INIT, 0, nil), new(int)))
	require.NoError(t, reporter.Finalize(mpiutils.RankArgs{Rank: 0}, new(int)))

	assert.Equal(t, 1, publisher.count(websocket.MPICall))
	assert.Empty(t, r.Unfinalized())
}

func TestMPICallLogsCollectivesVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	previous := logger.MaxLogLevel()
	logger.SetMaxLogLevel(logger.Levels.Verbose)
	t.Cleanup(func() {
		logger.SetMaxLogLevel(previous)
		logger.SetOutput(os.Stderr)
	})

	reporter := NewNodeReporter(NewRegistry("job", 2, nil))

	require.NoError(t, reporter.MPICall(mpiutils.NewCallRecord(mpiutils.OP_SEND, 1, mpiutils.PeerParameters("dest", 0, 3)), new(int)))
	assert.Empty(t, buf.String())

	require.NoError(t, reporter.MPICall(mpiutils.NewCallRecord(mpiutils.OP_BARRIER, 1, nil), new(int)))
	assert.Contains(t, buf.String(), "node 1 entered collective MPI_Barrier")
}
