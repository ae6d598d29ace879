package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/logger"
	rediscommon "github.com/pixelvault/vault/common/redis"
	"github.com/redis/go-redis/v9"
)

// AnalysisWorker consumes queued analysis tasks from the
// vault.tasks.analyze stream and drives each image to its terminal
// state. Several instances can run against the same consumer group.
type AnalysisWorker struct {
	redis         *rediscommon.Client
	uploads       *service.UploadService
	logger        *logger.Logger
	stream        string
	consumerGroup string
	consumerName  string
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(redisClient *rediscommon.Client, uploads *service.UploadService, log *logger.Logger) *AnalysisWorker {
	return &AnalysisWorker{
		redis:         redisClient,
		uploads:       uploads,
		logger:        log,
		stream:        service.AnalyzeStream,
		consumerGroup: "analysis_workers",
		consumerName:  fmt.Sprintf("analysis_worker_%s", uuid.New().String()[:8]),
	}
}

// Start begins processing analysis tasks until the context is cancelled
func (w *AnalysisWorker) Start(ctx context.Context) error {
	w.logger.Info("starting analysis worker",
		"stream", w.stream,
		"consumer_name", w.consumerName)

	if err := w.redis.CreateStreamGroup(ctx, w.stream, w.consumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("analysis worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				w.logger.Error("failed to process task", "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

// processNext reads and processes one analysis task
func (w *AnalysisWorker) processNext(ctx context.Context) error {
	streams, err := w.redis.ReadFromStreamGroup(ctx, w.consumerGroup, w.consumerName, w.stream, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}

	if streams == nil {
		// Timeout, no messages
		return nil
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := w.handleTask(ctx, message); err != nil {
				w.logger.Error("failed to handle analysis task", "message_id", message.ID, "error", err)
			}

			// ACK regardless: a failed task has already moved its upload
			// to FAILED, re-delivery would not change the outcome.
			if err := w.redis.AckStreamMessage(ctx, w.stream, w.consumerGroup, message.ID); err != nil {
				w.logger.Error("failed to ACK message", "message_id", message.ID, "error", err)
			}
		}
	}

	return nil
}

// handleTask runs analysis for one queued image
func (w *AnalysisWorker) handleTask(ctx context.Context, message redis.XMessage) error {
	rawImageID, ok := message.Values["image_id"].(string)
	if !ok || rawImageID == "" {
		return fmt.Errorf("task %s missing image_id", message.ID)
	}
	uploadID, _ := message.Values["upload_id"].(string)

	imageID, err := uuid.Parse(rawImageID)
	if err != nil {
		return fmt.Errorf("task %s has invalid image_id %q: %w", message.ID, rawImageID, err)
	}

	log := w.logger.WithImageID(rawImageID)
	if uploadID != "" {
		log = log.WithUploadID(uploadID)
	}
	log.Info("processing analysis task", "message_id", message.ID)

	if _, err := w.uploads.AnalyzeImage(ctx, imageID, uploadID); err != nil {
		return fmt.Errorf("analysis failed for image %s: %w", rawImageID, err)
	}

	log.Info("analysis task completed")
	return nil
}
