// Package apply serializes the handling of raft messages for a member and
// applies what they commit.
package apply

import (
	"context"
	"sort"
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/catchup"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/logger"
	"github.com/influxdata/coreraft/raft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrForeignCluster is returned for messages sent in another cluster.
	ErrForeignCluster = &errors.Error{
		Code: errors.EInvalid,
		Msg:  "message belongs to another cluster",
	}

	// ErrClosed is returned once the applier was closed.
	ErrClosed = &errors.Error{
		Code: errors.EClosed,
		Msg:  "message applier is closed",
	}
)

// ConsensusMachine is the raft machine messages are applied to.
type ConsensusMachine interface {
	Handle(msg raft.Message) (raft.ConsensusOutcome, error)
	Term() int64
	Panic()
}

// DownloadScheduler starts snapshot downloads.
type DownloadScheduler interface {
	ScheduleDownload(ctx context.Context) *catchup.JobHandle
}

// PanicListener is told when the member panics.
type PanicListener interface {
	OnPanic(err error)
}

// PanicListenerFunc adapts a function to PanicListener.
type PanicListenerFunc func(err error)

// OnPanic calls f.
func (f PanicListenerFunc) OnPanic(err error) { f(err) }

// MessageApplier hands messages to the raft machine one at a time and
// forwards commits to the command process. While a snapshot download runs
// it queues messages instead of handling them. A failure to handle a
// message or to download a snapshot panics the member.
//
// Messages are either enqueued with Handle and consumed by Run, or handled
// synchronously with Process. The two must not be mixed.
type MessageApplier struct {
	log       *zap.Logger
	clusterID coreraft.ClusterID
	machine   ConsensusMachine
	process   *CommandProcess
	downloads DownloadScheduler
	config    Config
	metrics   *applierMetrics

	queue     chan raft.ClusterIDAwareMessage
	closing   chan struct{}
	closeOnce sync.Once

	mu             sync.Mutex
	job            *catchup.JobHandle
	jobTerm        int64
	pending        []raft.ClusterIDAwareMessage
	panicked       bool
	panicListeners map[int]PanicListener
	nextID         int
}

// NewMessageApplier returns an applier for the member myself of cluster.
func NewMessageApplier(
	log *zap.Logger,
	myself coreraft.MemberID,
	cluster coreraft.ClusterID,
	machine ConsensusMachine,
	process *CommandProcess,
	downloads DownloadScheduler,
	c Config,
) *MessageApplier {
	return &MessageApplier{
		log:            log.With(logger.Member(myself)),
		clusterID:      cluster,
		machine:        machine,
		process:        process,
		downloads:      downloads,
		config:         c,
		metrics:        newApplierMetrics(prometheus.Labels{"member": myself.String()}),
		queue:          make(chan raft.ClusterIDAwareMessage, c.QueueSize),
		closing:        make(chan struct{}),
		panicListeners: make(map[int]PanicListener),
	}
}

// Handle enqueues msg, blocking while the queue is full.
func (a *MessageApplier) Handle(ctx context.Context, msg raft.ClusterIDAwareMessage) error {
	select {
	case a.queue <- msg:
		return nil
	case <-a.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver enqueues a message raised by the local member. It never blocks:
// timeouts are dropped on a full queue as their timers are already rearmed.
func (a *MessageApplier) Deliver(msg raft.Message) {
	select {
	case a.queue <- raft.ClusterIDAwareMessage{ClusterID: a.clusterID, Message: msg}:
	default:
		a.metrics.dropped.Inc()
		a.log.Debug("Dropping local message on full queue", zap.Stringer("type", msg.Type()))
	}
}

// Run consumes the queue until ctx is done or the applier is closed.
func (a *MessageApplier) Run(ctx context.Context) error {
	for {
		a.mu.Lock()
		queue := a.queue
		var done <-chan struct{}
		if a.job != nil {
			done = a.job.Done()
			if len(a.pending) >= a.config.QueueSize {
				queue = nil
			}
		}
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closing:
			return nil
		case msg := <-queue:
			a.mu.Lock()
			a.receive(ctx, msg)
			a.mu.Unlock()
		case <-done:
			a.mu.Lock()
			a.finishDownload(ctx)
			a.mu.Unlock()
		}
	}
}

// Process handles msg on the calling goroutine. If the message requires a
// snapshot, Process waits for the download before returning.
func (a *MessageApplier) Process(ctx context.Context, msg raft.ClusterIDAwareMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.awaitDownload(ctx); err != nil {
		return err
	}
	err := a.step(ctx, msg)
	if werr := a.awaitDownload(ctx); werr != nil {
		return werr
	}
	return err
}

func (a *MessageApplier) awaitDownload(ctx context.Context) error {
	for a.job != nil {
		select {
		case <-a.job.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		a.finishDownload(ctx)
	}
	return nil
}

// receive handles msg, or queues it while a download runs. A message of a
// later term than the one the download started in cancels the download.
func (a *MessageApplier) receive(ctx context.Context, msg raft.ClusterIDAwareMessage) {
	if a.job == nil {
		_ = a.step(ctx, msg)
		return
	}

	if msg.ClusterID == a.clusterID && !raft.IsLocal(msg.Message) && msg.Message.Header().Term > a.jobTerm {
		a.log.Info("Cancelling snapshot download on later term",
			logger.Term(msg.Message.Header().Term),
			zap.Int64("download_term", a.jobTerm))
		a.job.Cancel()
	}
	a.pending = append(a.pending, msg)
}

func (a *MessageApplier) step(ctx context.Context, msg raft.ClusterIDAwareMessage) error {
	if a.panicked {
		return raft.ErrPanicked
	}
	if msg.ClusterID != a.clusterID {
		a.metrics.foreign.Inc()
		a.log.Warn("Discarding message from another cluster",
			zap.Stringer("cluster_id", msg.ClusterID),
			zap.Stringer("type", msg.Message.Type()))
		return ErrForeignCluster
	}

	outcome, err := a.machine.Handle(msg.Message)
	if err != nil {
		a.halt(err)
		return err
	}

	if outcome.NeedsFreshSnapshot {
		a.job = a.downloads.ScheduleDownload(ctx)
		a.jobTerm = a.machine.Term()
		a.metrics.downloads.Inc()
		a.log.Info("Log too far behind, downloading snapshot", logger.Term(a.jobTerm))
		return nil
	}

	if err := a.process.NotifyCommitted(outcome.CommitIndex); err != nil {
		a.halt(err)
		return err
	}
	if req, ok := a.process.PruneRequest(); ok {
		if _, err := a.machine.Handle(req); err != nil {
			a.halt(err)
			return err
		}
	}
	return nil
}

// finishDownload leaves the download state and handles what was queued
// meanwhile. A failed download panics the member; a cancelled one does not.
func (a *MessageApplier) finishDownload(ctx context.Context) {
	err := a.job.Err()
	a.job = nil

	switch {
	case err == nil:
		a.log.Info("Snapshot download completed")
	case errors.ErrorCode(err) == errors.ECancelled || err == context.Canceled:
		a.log.Info("Snapshot download cancelled")
	default:
		a.halt(err)
	}

	pending := a.pending
	a.pending = nil
	for _, msg := range pending {
		a.receive(ctx, msg)
	}
}

func (a *MessageApplier) halt(err error) {
	if a.panicked {
		return
	}
	a.panicked = true
	a.metrics.panics.Inc()
	a.machine.Panic()
	a.log.Error("Member panicked, no longer handling messages", zap.Error(err))

	ids := make([]int, 0, len(a.panicListeners))
	for id := range a.panicListeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		a.panicListeners[id].OnPanic(err)
	}
}

// RegisterPanicListener adds l to the listeners told about a panic. The
// returned func removes it again.
func (a *MessageApplier) RegisterPanicListener(l PanicListener) (unregister func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.panicListeners[id] = l
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.panicListeners, id)
	}
}

// AwaitingSnapshot returns true while a snapshot download runs.
func (a *MessageApplier) AwaitingSnapshot() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job != nil
}

// Panicked returns true once the member panicked.
func (a *MessageApplier) Panicked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.panicked
}

// Close stops Run and rejects further messages.
func (a *MessageApplier) Close() error {
	a.closeOnce.Do(func() { close(a.closing) })
	return nil
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (a *MessageApplier) PrometheusCollectors() []prometheus.Collector {
	return a.metrics.PrometheusCollectors()
}
