// Package queue carries job messages between the API and the render workers.
// Every backend acknowledges a message once its handler returns, whatever
// the job's outcome; the job store, not the broker, records failures.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

func encodeMessage(msg models.JobMessage) ([]byte, error) {
	if msg.JobID == "" {
		return nil, errors.ValidationField("jobId", "message has no jobId")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "queue.encode", "encode job message")
	}
	return raw, nil
}

// decodeMessage ignores unknown fields so older workers accept newer producers.
func decodeMessage(raw []byte) (models.JobMessage, error) {
	var msg models.JobMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, errors.WrapWithCode(err, errors.CodeValidation, "queue.decode", "undecodable job message")
	}
	if msg.JobID == "" {
		return msg, errors.ValidationField("jobId", "job message without jobId")
	}
	return msg, nil
}

// deliver runs h and turns a panic into an error so a consumer loop survives it.
func deliver(ctx context.Context, log *logger.Logger, h ports.MessageHandler, msg models.JobMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("message handler panic",
				"job_id", msg.JobID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = errors.Internalf("handler panic: %v", r)
		}
	}()

	if err := h(logger.ContextWithJobID(ctx, msg.JobID), msg); err != nil {
		log.Warn("message handler returned error", "job_id", msg.JobID, "error", err.Error())
		return err
	}
	return nil
}
