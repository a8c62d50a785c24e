package mpi

import (
	"errors"
	netrpc "net/rpc"

	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/rpc"
	"github.com/mihkeltiks/mpi-hello/utils/mailbox"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

type transport interface {
	barrier(rank int) error
	send(args mpiutils.SendArgs) error
	recv(args mpiutils.RecvArgs) ([]byte, error)
	finalize(rank int) error
	record(callRecord mpiutils.MPICallRecord)
	close() error
}

// remoteTransport talks to the launcher.
type remoteTransport struct {
	client      *rpc.RPCClient
	forwardLogs bool
}

func (t *remoteTransport) barrier(rank int) error {
	return remoteError(t.client.Call("NodeReporter.Barrier", mpiutils.RankArgs{Rank: rank}, new(int)))
}

func (t *remoteTransport) send(args mpiutils.SendArgs) error {
	return remoteError(t.client.Call("NodeReporter.Send", args, new(int)))
}

func (t *remoteTransport) recv(args mpiutils.RecvArgs) ([]byte, error) {
	var reply mpiutils.RecvReply
	if err := t.client.Call("NodeReporter.Recv", args, &reply); err != nil {
		return nil, remoteError(err)
	}
	return reply.Payload, nil
}

func (t *remoteTransport) finalize(rank int) error {
	return remoteError(t.client.Call("NodeReporter.Finalize", mpiutils.RankArgs{Rank: rank}, new(int)))
}

func (t *remoteTransport) record(callRecord mpiutils.MPICallRecord) {
	if err := t.client.Call("NodeReporter.MPICall", callRecord, new(int)); err != nil {
		logger.Debug("failed to report %s: %v", callRecord.OpName, err)
	}
}

func (t *remoteTransport) close() error {
	if t.forwardLogs {
		logger.SetSendRemoteLog(nil, 0)
	}
	return t.client.Disconnect()
}

// rpc errors only carry the message of the launcher-side error
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr netrpc.ServerError
	if errors.As(err, &serverErr) && string(serverErr) == mpiutils.AbortedMessage {
		return ErrAborted
	}
	return err
}

// localTransport serves a singleton group.
type localTransport struct {
	mailbox *mailbox.Mailbox
}

func newLocalTransport() *localTransport {
	return &localTransport{mailbox: mailbox.New()}
}

func (t *localTransport) barrier(rank int) error {
	return nil
}

func (t *localTransport) send(args mpiutils.SendArgs) error {
	return t.mailbox.Put(mailbox.Key{Source: args.Source, Dest: args.Dest, Tag: args.Tag}, args.Payload)
}

// A singleton can only receive what it sent itself, so an empty queue would
// block forever.
func (t *localTransport) recv(args mpiutils.RecvArgs) ([]byte, error) {
	payload, ok := t.mailbox.TryTake(mailbox.Key{Source: args.Source, Dest: args.Dest, Tag: args.Tag})
	if !ok {
		return nil, ErrDeadlock
	}
	return payload, nil
}

func (t *localTransport) finalize(rank int) error {
	return nil
}

func (t *localTransport) record(callRecord mpiutils.MPICallRecord) {
	logger.Debug("%s %v", callRecord.OpName, callRecord.Parameters)
}

func (t *localTransport) close() error {
	t.mailbox.Close()
	return nil
}
