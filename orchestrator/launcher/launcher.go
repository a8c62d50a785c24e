// Package launcher runs a program as a process group and supervises it until
// every process has exited.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mihkeltiks/mpi-hello/config"
	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/orchestrator/gui/websocket"
	"github.com/mihkeltiks/mpi-hello/orchestrator/nodeconnection"
	"github.com/mihkeltiks/mpi-hello/rpc"
	"github.com/mihkeltiks/mpi-hello/utils"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

var (
	ErrStartupTimeout  = errors.New("processes did not register in time")
	ErrIncompleteGroup = errors.New("processes exited without joining the group")
)

// ProcessError reports a process that exited unsuccessfully.
type ProcessError struct {
	Rank int
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %d exited: %v", e.Rank, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

type Launcher struct {
	config  *config.Config
	spawner Spawner
	hub     *websocket.Hub
	stdout  io.Writer
	stderr  io.Writer
	baseEnv []string
}

func New(cfg *config.Config, spawner Spawner, stdout, stderr io.Writer) *Launcher {
	return &Launcher{
		config:  cfg,
		spawner: spawner,
		stdout:  stdout,
		stderr:  stderr,
		baseEnv: os.Environ(),
	}
}

// SetEventHub publishes job events on hub.
func (l *Launcher) SetEventHub(hub *websocket.Hub) {
	l.hub = hub
}

// Run starts config.NumProcesses copies of target and waits for all of them.
// The first process to fail aborts the job and the remaining ones are killed.
func (l *Launcher) Run(ctx context.Context, target string, args []string) (err error) {
	jobID := utils.RandomId()
	size := l.config.NumProcesses

	var publisher nodeconnection.Publisher
	if l.hub != nil {
		publisher = l.hub
		l.hub.SendJobStarted(jobID, size, target)
		defer func() { l.hub.SendJobFinished(jobID, err) }()
	}

	registry := nodeconnection.NewRegistry(jobID, size, publisher)

	server, err := rpc.InitializeServer(l.config.Address, func(register rpc.Registrator) error {
		if err := register(new(logger.LoggerServer)); err != nil {
			return err
		}
		return register(nodeconnection.NewNodeReporter(registry))
	})
	if err != nil {
		return err
	}

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("rpc server stopped: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("executing %v as an mpi job with %d processes (job %s)", target, size, jobID)

	outputs := newOutputMux(jobID, l.config.TagOutput)
	defer outputs.Flush()

	g, gctx := errgroup.WithContext(ctx)

	// release nodes blocked in barriers and receives once the job is over
	go func() {
		<-gctx.Done()
		registry.Abort()
	}()

	var running sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		process, err := l.spawner.Spawn(ProcessSpec{
			Rank:   rank,
			Target: target,
			Args:   args,
			Env:    l.env(jobID, rank, size, server.Addr()),
			Stdout: outputs.writer(l.stdout, rank, "stdout"),
			Stderr: outputs.writer(l.stderr, rank, "stderr"),
		})
		if err != nil {
			g.Go(func() error {
				return fmt.Errorf("failed to start process %d: %w", rank, err)
			})
			break
		}

		rank := rank
		running.Add(1)
		g.Go(func() error {
			defer running.Done()
			return supervise(gctx, rank, process, registry)
		})
	}

	allExited := make(chan struct{})
	go func() {
		running.Wait()
		close(allExited)
	}()

	g.Go(func() error {
		return awaitRegistration(gctx, registry, l.config.StartupTimeout, allExited)
	})

	if err := g.Wait(); err != nil {
		if ids := registry.Unfinalized(); len(ids) > 0 {
			logger.Verbose("processes %v had not finalized when the job ended", ids)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("job interrupted: %w", ctx.Err())
		}
		return err
	}

	if n := registry.Undelivered(); n > 0 {
		logger.Warn("%d messages were sent but never received", n)
	}

	logger.Verbose("all %d processes exited", size)
	return nil
}

func (l *Launcher) env(jobID string, rank, size int, address string) []string {
	env := append([]string{}, l.baseEnv...)
	env = append(env,
		mpiutils.EnvLauncherAddress+"="+address,
		mpiutils.EnvRank+"="+strconv.Itoa(rank),
		mpiutils.EnvSize+"="+strconv.Itoa(size),
		mpiutils.EnvJobID+"="+jobID,
		mpiutils.EnvLogLevel+"="+l.config.Level().String(),
	)
	if l.config.ForwardNodeLogs {
		env = append(env, mpiutils.EnvRemoteLog+"=1")
	}
	return env
}

// supervise waits for one process. A successful exit still fails the job when
// the process joined the group and never called Finalize.
func supervise(ctx context.Context, rank int, process Process, registry *nodeconnection.Registry) error {
	exited := make(chan error, 1)
	go func() {
		exited <- process.Wait()
	}()

	select {
	case err := <-exited:
		if err != nil {
			return &ProcessError{Rank: rank, Err: err}
		}
		if err := registry.Exited(rank); err != nil {
			return &ProcessError{Rank: rank, Err: err}
		}
		logger.Debug("process %d exited", rank)
		return nil
	case <-ctx.Done():
		logger.Debug("killing process %d", rank)
		if err := process.Kill(); err != nil {
			logger.Debug("failed to kill process %d: %v", rank, err)
		}
		<-exited
		return ctx.Err()
	}
}

// awaitRegistration fails the job when the group is not complete within timeout,
// or as soon as it cannot become complete. Programs that never join the group
// are allowed as long as no process of the job joins it either.
func awaitRegistration(ctx context.Context, registry *nodeconnection.Registry, timeout time.Duration, allExited <-chan struct{}) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-registry.AllRegistered():
		return nil
	case <-registry.Incomplete():
		return fmt.Errorf("%w: %v exited, %v registered",
			ErrIncompleteGroup, registry.Departed(), registry.GetRegisteredIds())
	case <-allExited:
		return nil
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %d of %d registered within %v",
			ErrStartupTimeout, len(registry.GetRegisteredIds()), registry.Size(), timeout)
	}
}
