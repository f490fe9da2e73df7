package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/remitchat/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker consumes submitted transfer requests and records them in the ledger.
type Worker struct {
	queue  queueClient
	ledger Ledger
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker constructs a queue consumer writing to ledger.
func NewWorker(queue queueClient, ledger Ledger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("transfer: queue cannot be nil")
	}
	if ledger == nil {
		panic("transfer: ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, ledger: ledger, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("transfer worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("transfer worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive transfer requests", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	req, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable transfer request", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	inserted, err := w.ledger.Insert(ctx, req)
	if err != nil {
		w.logger.Error("failed to record transfer request", "error", err, "transfer_id", req.ID)
		w.release(ctx, msg)
		return
	}
	if inserted {
		w.logger.Info("transfer request recorded",
			"transfer_id", req.ID,
			"sender_id", logging.MaskSender(req.SenderID),
			"corridor_id", req.CorridorID,
			"total", req.Total.StringFixed(2),
		)
	} else {
		w.logger.Info("duplicate transfer request ignored", "transfer_id", req.ID)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

// release hands msg back to queues that do not redeliver on their own.
func (w *Worker) release(ctx context.Context, msg queueMessage) {
	r, ok := w.queue.(releaser)
	if !ok {
		return
	}
	if err := r.Release(context.WithoutCancel(ctx), msg); err != nil {
		w.logger.Error("failed to release transfer message", "error", err, "msg_id", msg.ID)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete transfer message", "error", err)
	}
}
