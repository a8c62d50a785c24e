package nodeconnection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mihkeltiks/mpi-hello/logger"
	"github.com/mihkeltiks/mpi-hello/orchestrator/gui/websocket"
	"github.com/mihkeltiks/mpi-hello/utils/mailbox"
	mpiutils "github.com/mihkeltiks/mpi-hello/utils/mpi"
)

var (
	ErrAborted       = errors.New(mpiutils.AbortedMessage)
	ErrInvalidRank   = errors.New("rank out of range")
	ErrDuplicateRank = errors.New("rank already registered")
	ErrUnknownRank   = errors.New("rank not registered")
	ErrInvalidTag    = errors.New("tag must not be negative")
	ErrNotFinalized  = errors.New("Finalize was never called")
)

// Publisher receives job events, usually a websocket.Hub.
type Publisher interface {
	Publish(messageType websocket.MessageType, value any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(websocket.MessageType, any) {}

type node struct {
	id        int
	pid       int
	hostname  string
	finalized bool
}

// keys - node ids
type nodeMap map[int]*node

// Registry is the launcher's view of one process group.
type Registry struct {
	mu    sync.Mutex
	jobID string
	size  int
	nodes nodeMap

	allRegistered chan struct{}

	// ranks that exited successfully without registering
	departed       map[int]bool
	incomplete     chan struct{}
	incompleteOnce sync.Once

	barrierArrived map[int]bool
	barrierRelease chan struct{}

	mailbox   *mailbox.Mailbox
	aborted   chan struct{}
	abortOnce sync.Once
	publisher Publisher
}

func NewRegistry(jobID string, size int, publisher Publisher) *Registry {
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &Registry{
		jobID:          jobID,
		size:           size,
		nodes:          make(nodeMap),
		allRegistered:  make(chan struct{}),
		departed:       make(map[int]bool),
		incomplete:     make(chan struct{}),
		barrierArrived: make(map[int]bool),
		barrierRelease: make(chan struct{}),
		mailbox:        mailbox.New(),
		aborted:        make(chan struct{}),
		publisher:      publisher,
	}
}

func (r *Registry) Size() int {
	return r.size
}

func (r *Registry) JobID() string {
	return r.jobID
}

func (r *Registry) checkRank(rank int) error {
	if rank < 0 || rank >= r.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, rank, r.size)
	}
	return nil
}

// requires r.mu
func (r *Registry) registeredNode(rank int) (*node, error) {
	if err := r.checkRank(rank); err != nil {
		return nil, err
	}
	n, ok := r.nodes[rank]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRank, rank)
	}
	return n, nil
}

func (r *Registry) Register(args mpiutils.RegisterArgs) error {
	if err := r.checkRank(args.Rank); err != nil {
		return err
	}

	r.mu.Lock()
	if existing, ok := r.nodes[args.Rank]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d (pid %d)", ErrDuplicateRank, args.Rank, existing.pid)
	}

	r.nodes[args.Rank] = &node{id: args.Rank, pid: args.Pid, hostname: args.Hostname}
	complete := len(r.nodes) == r.size
	r.checkIncomplete()
	r.mu.Unlock()

	logger.Verbose("added process %d (pid: %d, host: %s) to process list", args.Rank, args.Pid, args.Hostname)
	r.publisher.Publish(websocket.NodeRegistered, websocket.NodeValue{
		Rank:     args.Rank,
		Pid:      args.Pid,
		Hostname: args.Hostname,
	})

	if complete {
		logger.Verbose("all %d processes registered", r.size)
		close(r.allRegistered)
	}

	return nil
}

// AllRegistered is closed once every rank has registered.
func (r *Registry) AllRegistered() <-chan struct{} {
	return r.allRegistered
}

// Exited accounts for a process that exited successfully. A registered rank
// must have finalized first. A rank that never registered leaves the group
// short, which is only fine if no rank ever joins it.
func (r *Registry) Exited(rank int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.nodes[rank]; ok {
		if !n.finalized {
			return ErrNotFinalized
		}
		return nil
	}

	r.departed[rank] = true
	r.checkIncomplete()
	return nil
}

// requires r.mu
func (r *Registry) checkIncomplete() {
	if len(r.departed) > 0 && len(r.nodes) > 0 {
		r.incompleteOnce.Do(func() { close(r.incomplete) })
	}
}

// Incomplete is closed once some rank has joined the group while another
// has exited without joining, so the group can never be whole.
func (r *Registry) Incomplete() <-chan struct{} {
	return r.incomplete
}

// Departed lists the ranks that exited without registering.
func (r *Registry) Departed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.departed))
	for id := range r.departed {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *Registry) GetRegisteredIds() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodeIds := make([]int, 0, len(r.nodes))
	for nodeId := range r.nodes {
		nodeIds = append(nodeIds, nodeId)
	}
	sort.Ints(nodeIds)
	return nodeIds
}

func (r *Registry) Finalize(rank int) error {
	r.mu.Lock()
	n, err := r.registeredNode(rank)
	if err == nil {
		n.finalized = true
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}

	logger.Verbose("process %d finalized", rank)
	r.publisher.Publish(websocket.NodeFinalized, websocket.NodeValue{Rank: n.id, Pid: n.pid, Hostname: n.hostname})
	return nil
}

// Unfinalized lists the registered ranks that never called Finalize.
func (r *Registry) Unfinalized() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for id, n := range r.nodes {
		if !n.finalized {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Barrier returns once every rank has entered the current barrier generation.
func (r *Registry) Barrier(rank int) error {
	r.mu.Lock()
	if _, err := r.registeredNode(rank); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.barrierArrived[rank] {
		r.mu.Unlock()
		return fmt.Errorf("rank %d already waiting at barrier", rank)
	}

	release := r.barrierRelease
	r.barrierArrived[rank] = true

	if len(r.barrierArrived) == r.size {
		close(release)
		r.barrierRelease = make(chan struct{})
		r.barrierArrived = make(map[int]bool)
	}
	r.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-r.aborted:
		return ErrAborted
	}
}

func (r *Registry) Send(args mpiutils.SendArgs) error {
	if err := r.checkRank(args.Source); err != nil {
		return err
	}
	if err := r.checkRank(args.Dest); err != nil {
		return err
	}
	if args.Tag < 0 {
		return ErrInvalidTag
	}

	err := r.mailbox.Put(mailbox.Key{Source: args.Source, Dest: args.Dest, Tag: args.Tag}, args.Payload)
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrAborted
	}
	return err
}

func (r *Registry) Recv(args mpiutils.RecvArgs) ([]byte, error) {
	if err := r.checkRank(args.Source); err != nil {
		return nil, err
	}
	if err := r.checkRank(args.Dest); err != nil {
		return nil, err
	}
	if args.Tag < 0 {
		return nil, ErrInvalidTag
	}

	payload, err := r.mailbox.Take(context.Background(), mailbox.Key{Source: args.Source, Dest: args.Dest, Tag: args.Tag})
	if errors.Is(err, mailbox.ErrClosed) {
		return nil, ErrAborted
	}
	return payload, err
}

// Undelivered counts messages sent but never received.
func (r *Registry) Undelivered() int {
	return r.mailbox.Pending()
}

// Abort releases every blocked barrier and receive with ErrAborted.
func (r *Registry) Abort() {
	r.abortOnce.Do(func() {
		close(r.aborted)
		r.mailbox.Close()
	})
}
