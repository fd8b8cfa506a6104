package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"docanalyzer/internal/app"
	"docanalyzer/internal/platform/rabbitmq"
)

// IngestWorker consumes document process jobs and drives them through
// the ingest service. Failed jobs are acked anyway: the failure is
// recorded on the document row and retries are a manual decision.
type IngestWorker struct {
	conn      *amqp.Connection
	ingest    *app.IngestService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, ingest *app.IngestService, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		ingest:    ingest,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job rabbitmq.ProcessJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Error().Err(err).Msg("worker decode process job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := w.ingest.Process(workerCtx, job.DocumentID); err != nil {
					log.Error().Err(err).Uint("document_id", job.DocumentID).Msg("worker process document failed")
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
