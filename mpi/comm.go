package mpi

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/rpc"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

var (
	ErrFinalized   = errors.New("mpi: already finalized")
	ErrInvalidRank = errors.New("mpi: rank out of range")
	ErrInvalidTag  = errors.New("mpi: tag must not be negative")
	ErrAborted     = errors.New("mpi: job aborted")
	ErrDeadlock    = errors.New("mpi: no matching message queued in a singleton group")
)

// Comm is the handle of one process within its group.
type Comm struct {
	mu        sync.Mutex
	rank      int
	size      int
	jobID     string
	args      []string
	transport transport
	finalized bool
}

// Init joins the process group this process was launched in. args is kept
// unmodified and available through Args.
func Init(args []string) (*Comm, error) {
	return InitEnv(args, os.Getenv)
}

// InitEnv is Init with the environment lookup supplied by the caller.
func InitEnv(args []string, getenv func(string) string) (*Comm, error) {
	address := getenv(mpiutils.EnvLauncherAddress)
	if address == "" {
		logger.Debug("no launcher address set, running as singleton")
		return newComm(args, 0, 1, "", newLocalTransport()), nil
	}

	if level := getenv(mpiutils.EnvLogLevel); level != "" {
		if l, err := logger.ParseLevel(level); err == nil {
			logger.SetMaxLogLevel(l)
		}
	}

	rank, err := strconv.Atoi(getenv(mpiutils.EnvRank))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", mpiutils.EnvRank, err)
	}
	size, err := strconv.Atoi(getenv(mpiutils.EnvSize))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", mpiutils.EnvSize, err)
	}
	if size < 1 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d, size %d", ErrInvalidRank, rank, size)
	}

	client, err := rpc.Connect(address)
	if err != nil {
		return nil, err
	}
	if err := client.Heartbeat(); err != nil {
		client.Disconnect()
		return nil, err
	}

	hostname, _ := os.Hostname()

	var reply mpiutils.RegisterReply
	err = client.Call("NodeReporter.Register", mpiutils.RegisterArgs{
		Rank:     rank,
		Pid:      os.Getpid(),
		Hostname: hostname,
	}, &reply)
	if err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("failed to register process %d: %w", rank, err)
	}

	if reply.JobID != "" && reply.JobID != getenv(mpiutils.EnvJobID) {
		logger.Warn("launcher job %s does not match environment job %s", reply.JobID, getenv(mpiutils.EnvJobID))
	}

	remote := &remoteTransport{client: client}
	if getenv(mpiutils.EnvRemoteLog) == "1" {
		remote.forwardLogs = true
		logger.SetSendRemoteLog(func(args *logger.RemoteLogArgs) error {
			return client.Call("LoggerServer.Log", args, new(int))
		}, rank)
	}

	comm := newComm(args, rank, reply.Size, reply.JobID, remote)
	logger.Debug("process registered as %d of %d", comm.rank, comm.size)

	return comm, nil
}

func newComm(args []string, rank, size int, jobID string, t transport) *Comm {
	comm := &Comm{
		rank:      rank,
		size:      size,
		jobID:     jobID,
		args:      args,
		transport: t,
	}
	comm.record(mpiutils.OP_INIT, nil)
	return comm
}

// Rank is this process's position in the group, in [0, Size()).
func (c *Comm) Rank() int {
	return c.rank
}

// Size is the number of processes in the group.
func (c *Comm) Size() int {
	return c.size
}

// JobID identifies the launcher job; it is empty for a singleton.
func (c *Comm) JobID() string {
	return c.jobID
}

// Args returns the argument list passed to Init.
func (c *Comm) Args() []string {
	return c.args
}

func (c *Comm) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrFinalized
	}
	return nil
}

func (c *Comm) checkPeer(peer, tag int) error {
	if peer < 0 || peer >= c.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, peer, c.size)
	}
	if tag < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
	return nil
}

// Barrier blocks until every process of the group has called Barrier.
func (c *Comm) Barrier() error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := c.transport.barrier(c.rank); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}

	c.record(mpiutils.OP_BARRIER, nil)
	return nil
}

// Send delivers data to dest. It returns once the message is queued; the
// receiver does not need to be waiting.
func (c *Comm) Send(data any, dest, tag int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkPeer(dest, tag); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return fmt.Errorf("failed to encode message for %d: %w", dest, err)
	}

	err := c.transport.send(mpiutils.SendArgs{
		Source:  c.rank,
		Dest:    dest,
		Tag:     tag,
		Payload: buf.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("send to %d: %w", dest, err)
	}

	c.record(mpiutils.OP_SEND, mpiutils.PeerParameters("dest", dest, tag))
	return nil
}

// Recv blocks until a message from source with tag arrives and decodes it into
// data, which must be a pointer. Messages from one source with one tag arrive
// in the order they were sent.
func (c *Comm) Recv(data any, source, tag int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkPeer(source, tag); err != nil {
		return err
	}

	payload, err := c.transport.recv(mpiutils.RecvArgs{
		Source: source,
		Dest:   c.rank,
		Tag:    tag,
	})
	if err != nil {
		return fmt.Errorf("recv from %d: %w", source, err)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(data); err != nil {
		return fmt.Errorf("failed to decode message from %d: %w", source, err)
	}

	c.record(mpiutils.OP_RECV, mpiutils.PeerParameters("source", source, tag))
	return nil
}

// Finalize waits for every process of the group to finalize and releases the
// connection to the launcher. Every later call on c returns ErrFinalized.
func (c *Comm) Finalize() error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return ErrFinalized
	}
	c.finalized = true
	c.mu.Unlock()

	c.record(mpiutils.OP_FINALIZE, nil)

	err := c.transport.finalize(c.rank)
	if err == nil {
		err = c.transport.barrier(c.rank)
	}

	if closeErr := c.transport.close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

func (c *Comm) record(op mpiutils.MPI_OPCODE, parameters map[string]string) {
	c.transport.record(mpiutils.NewCallRecord(op, c.rank, parameters))
}
