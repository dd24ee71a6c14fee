package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"bimagent/internal/app"
)

// GenerationWorker consumes document-generation jobs and runs them to
// completion. Job status lives in the shared status cache, so a Nack'd
// job that is not retried still reports failed to pollers.
type GenerationWorker struct {
	conn      *amqp.Connection
	service   *app.GenerationService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGenerationWorker(conn *amqp.Connection, service *app.GenerationService, queueName string) *GenerationWorker {
	return &GenerationWorker{
		conn:      conn,
		service:   service,
		queueName: queueName,
	}
}

func (w *GenerationWorker) Start(ctx context.Context) error {
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

	// Generation jobs are long LLM calls; take them one at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
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

				var job app.GenerationJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode generation job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.service.Execute(workerCtx, job); err != nil {
					log.Printf("worker generation job %s failed: %v", job.JobID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *GenerationWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
