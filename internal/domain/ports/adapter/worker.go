package adapter

import (
	"context"

	"ai-image-queue/internal/domain/model"
)

// ImageWorkerAdapter dispatches an admitted job to the external generation
// worker. Dispatch is fire-and-forget: the worker reports back asynchronously
// through webhook callbacks carrying the job id as correlation token.
type ImageWorkerAdapter interface {
	Dispatch(ctx context.Context, job *model.Job) error
}
