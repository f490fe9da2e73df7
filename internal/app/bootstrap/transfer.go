package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/transfer"
	"github.com/wolfman30/remitchat/pkg/logging"
)

const memoryQueueBuffer = 256

// Handoff is the execution hand-off pipeline seen from the API process.
type Handoff struct {
	Submitter *transfer.QueueSubmitter
	Ledger    transfer.Ledger
	Status    *transfer.StatusHandler
	// Worker drains the in-memory queue; nil when an external worker consumes SQS.
	Worker *transfer.Worker
	Queue  string
}

// BuildLedger returns the pgx ledger when a pool exists, else the in-memory one.
func BuildLedger(pool *pgxpool.Pool) transfer.Ledger {
	if pool == nil {
		return transfer.NewMemoryLedger()
	}
	return transfer.NewPostgresLedger(pool)
}

// BuildHandoff wires submitter, ledger and status webhook. With the memory
// queue the worker runs in process; otherwise requests go to SQS.
func BuildHandoff(cfg *appconfig.Config, pool *pgxpool.Pool, sqsClient *sqs.Client, m *metrics.TransferMetrics, logger *logging.Logger) (*Handoff, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	ledger := BuildLedger(pool)
	var processed transfer.EventStore
	if pool != nil {
		processed = transfer.NewProcessedStore(pool)
	} else {
		processed = transfer.NewMemoryProcessedStore()
	}
	h := &Handoff{
		Ledger: ledger,
		Status: transfer.NewStatusHandler(cfg.TransferWebhookSecret, ledger, processed, m, logger),
	}

	if cfg.MemoryQueueEnabled() {
		queue := transfer.NewMemoryQueue(memoryQueueBuffer)
		h.Submitter = transfer.NewQueueSubmitter(queue, m, logger)
		h.Worker = transfer.NewWorker(queue, ledger, logger, transfer.WithWorkerCount(cfg.WorkerCount))
		h.Queue = "memory"
		return h, nil
	}

	if sqsClient == nil {
		return nil, fmt.Errorf("bootstrap: sqs client required for TRANSFER_QUEUE_URL")
	}
	h.Submitter = transfer.NewQueueSubmitter(transfer.NewSQSQueue(sqsClient, strings.TrimSpace(cfg.TransferQueueURL)), m, logger)
	h.Queue = "sqs"
	return h, nil
}
