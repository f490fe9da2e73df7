package transfer

import (
	"context"
	"fmt"

	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/pkg/logging"
)

// QueueSubmitter enqueues transfer requests for the execution worker.
type QueueSubmitter struct {
	queue   queueClient
	metrics *metrics.TransferMetrics
	logger  *logging.Logger
}

var _ Submitter = (*QueueSubmitter)(nil)

// NewQueueSubmitter creates a queue-backed submitter.
func NewQueueSubmitter(queue queueClient, m *metrics.TransferMetrics, logger *logging.Logger) *QueueSubmitter {
	if queue == nil {
		panic("transfer: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueSubmitter{queue: queue, metrics: m, logger: logger}
}

// Submit publishes req and returns once the queue accepted it.
func (s *QueueSubmitter) Submit(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveSubmission("invalid")
		return err
	}
	body, err := encodePayload(req)
	if err != nil {
		s.metrics.ObserveSubmission("invalid")
		return err
	}
	if err := s.queue.Send(ctx, body); err != nil {
		s.metrics.ObserveSubmission("failed")
		return fmt.Errorf("transfer: failed to enqueue request: %w", err)
	}
	s.metrics.ObserveSubmission("queued")
	s.logger.Debug("transfer request enqueued",
		"transfer_id", req.ID,
		"sender_id", logging.MaskSender(req.SenderID),
		"corridor_id", req.CorridorID,
	)
	return nil
}
