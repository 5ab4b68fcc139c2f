package newsharvest

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/pevans/newsharvest/workitems"
	"github.com/sirupsen/logrus"
)

// FailureMessage is recorded on items whose run failed.
const FailureMessage = "An error occurred while processing the webscrapping data"

// Runner executes one request into a directory. *Harvester implements it.
type Runner interface {
	RunTo(ctx context.Context, req SearchRequest, outputDir string) (*RunResult, error)
}

// Consumer drains the work item queue one item at a time.
type Consumer struct {
	store     *workitems.Store
	runner    Runner
	outputDir string
	log       logrus.FieldLogger
}

// ConsumeStats counts the outcome of a drain.
type ConsumeStats struct {
	Done   int
	Failed int
}

// NewConsumer creates a consumer writing each item's output to
// <outputDir>/<item-id>.
func NewConsumer(store *workitems.Store, runner Runner, outputDir string, log logrus.FieldLogger) *Consumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{
		store:     store,
		runner:    runner,
		outputDir: outputDir,
		log:       log,
	}
}

// Drain processes pending items until the queue is empty or ctx is
// cancelled. A failed item is recorded and the next one still runs; only
// queue errors stop the drain.
func (c *Consumer) Drain(ctx context.Context) (ConsumeStats, error) {
	var stats ConsumeStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		item, err := c.store.Claim()
		if errors.Is(err, workitems.ErrNoPendingItems) {
			c.log.WithFields(logrus.Fields{
				"done":   stats.Done,
				"failed": stats.Failed,
			}).Info("queue drained")
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		ok, err := c.process(ctx, item)
		if err != nil {
			return stats, err
		}
		if ok {
			stats.Done++
		} else {
			stats.Failed++
		}
	}
}

// process runs one claimed item and records the outcome. It reports whether
// the item succeeded; the error is only for failures to update the queue.
func (c *Consumer) process(ctx context.Context, item *workitems.Item) (bool, error) {
	log := c.log.WithField("item_id", item.ID.String())

	req, err := ParsePayload(item.Payload)
	if err != nil {
		log.WithError(err).Warn("rejecting malformed payload")
		return false, c.store.Fail(item.ID, workitems.Failure{
			ExceptionType: workitems.ExceptionBusiness,
			Code:          workitems.CodeInvalidPayload,
			Message:       err.Error(),
		})
	}

	result, err := c.runner.RunTo(ctx, req, filepath.Join(c.outputDir, item.ID.String()))
	if err != nil {
		log.WithError(err).Error("work item failed")
		return false, c.store.Fail(item.ID, workitems.Failure{
			ExceptionType: workitems.ExceptionApplication,
			Code:          workitems.CodeUnexpectedError,
			Message:       FailureMessage,
		})
	}

	log.WithField("records", result.Count()).Info("work item done")
	return true, c.store.Done(item.ID, result.ExportPath)
}
