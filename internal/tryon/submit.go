package tryon

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"proteus/internal/domain"
	"proteus/internal/imageconv"
)

// SubmitResult reports how far a submission got. Record is set as soon as
// creation succeeds, so a failed enqueue still hands the caller the id it
// needs to retry without re-uploading.
type SubmitResult struct {
	Record      *domain.TryOn
	Job         *domain.Job
	UserSnapKey string
	OutfitKey   string
	RequestID   string
}

// Submit runs the full flow for one try-on request: normalize both photos,
// upload them concurrently, create the record, then enqueue the compose job.
// The record is pushed into the attached cache the moment creation confirms.
func (c *Client) Submit(ctx context.Context, userPhoto, outfitPhoto imageconv.File) (*SubmitResult, error) {
	requestID := uuid.NewString()
	result := &SubmitResult{RequestID: requestID}
	logger := c.logger.With().Str("request_id", requestID).Logger()

	userNorm, err := imageconv.Normalize(userPhoto)
	if err != nil {
		return result, fmt.Errorf("tryon: normalize user snap: %w", err)
	}
	outfitNorm, err := imageconv.Normalize(outfitPhoto)
	if err != nil {
		return result, fmt.Errorf("tryon: normalize outfit: %w", err)
	}

	// The two uploads are independent; order between them does not matter,
	// only that both keys exist before the record is created.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		key, err := c.store.Upload(groupCtx, userNorm.Data, userNorm.Filename, userNorm.MediaType)
		if err != nil {
			return fmt.Errorf("user snap: %w", err)
		}
		result.UserSnapKey = key
		return nil
	})
	group.Go(func() error {
		key, err := c.store.Upload(groupCtx, outfitNorm.Data, outfitNorm.Filename, outfitNorm.MediaType)
		if err != nil {
			return fmt.Errorf("outfit: %w", err)
		}
		result.OutfitKey = key
		return nil
	})
	if err := group.Wait(); err != nil {
		return result, fmt.Errorf("tryon: upload: %w", err)
	}

	record, err := c.Create(ctx, CreateParams{
		UserSnapKey:        result.UserSnapKey,
		UncleanedOutfitKey: result.OutfitKey,
	})
	if err != nil {
		return result, err
	}
	result.Record = record
	if c.cache != nil {
		c.cache.Insert(*record)
	}
	logger.Debug().Str("record_id", record.ID).Msg("record created")

	job, err := c.EnqueueWeaver(ctx, record.ID, result.UserSnapKey, result.OutfitKey)
	if err != nil {
		// The record exists and stays pending; the caller can retry the
		// enqueue with result.Record.ID instead of re-uploading.
		logger.Warn().Str("record_id", record.ID).Err(err).Msg("enqueue failed after create")
		return result, err
	}
	result.Job = job
	logger.Info().Str("record_id", record.ID).Str("job_id", job.ID).Msg("submission enqueued")

	return result, nil
}

// Retry re-enqueues the compose job for a record whose enqueue previously
// failed, reusing its already-uploaded input keys.
func (c *Client) Retry(ctx context.Context, record *domain.TryOn) (*domain.Job, error) {
	if record == nil || record.ID == "" {
		return nil, fmt.Errorf("tryon: retry requires a created record")
	}
	return c.EnqueueWeaver(ctx, record.ID, record.UserSnapKey, record.UncleanedOutfitKey)
}
