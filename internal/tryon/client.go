// Package tryon talks to the record and job endpoints of the proteus API and
// composes the full submission flow: normalize, upload, create, enqueue.
package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"proteus/internal/api"
	"proteus/internal/domain"
	"proteus/internal/infra"
	"proteus/internal/storeclient"
)

// RecordCache receives confirmed records so the view layer sees them without
// waiting for a refetch. Implemented by the optimistic cache.
type RecordCache interface {
	Insert(rec domain.TryOn)
}

// Options configures a Client.
type Options struct {
	Session *api.Session
	Store   *storeclient.Client
	Logger  *infra.Logger
}

// Client is the record/job API client.
type Client struct {
	session *api.Session
	store   *storeclient.Client
	logger  *infra.Logger
	cache   RecordCache
}

// New constructs a try-on client.
func New(opts Options) (*Client, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("tryon: session is required")
	}
	store := opts.Store
	if store == nil {
		store = storeclient.New(opts.Session)
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{session: opts.Session, store: store, logger: logger}, nil
}

// AttachCache wires the optimistic cache in after construction. The cache
// wraps this client for its own fetches, so it cannot exist first.
func (c *Client) AttachCache(cache RecordCache) {
	c.cache = cache
}

// CreateParams are the input keys a new record references.
type CreateParams struct {
	UserSnapKey        string `json:"user_snap"`
	UncleanedOutfitKey string `json:"uncleaned_outfit"`
}

// UpdateParams is a partial record patch; nil fields are left untouched.
type UpdateParams struct {
	UserSnapKey        *string `json:"user_snap,omitempty"`
	UncleanedOutfitKey *string `json:"uncleaned_outfit,omitempty"`
	CleanedOutfitKey   *string `json:"cleaned_outfit,omitempty"`
	OutfitTryOnKey     *string `json:"outfit_try_on,omitempty"`
}

// ListQuery filters record listings.
type ListQuery struct {
	UserID string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.UserID != "" {
		v.Set("user_id", q.UserID)
	}
	return v
}

// Key canonicalizes the query for cache keying.
func (q ListQuery) Key() string {
	return q.values().Encode()
}

// Create registers a new record referencing the uploaded input keys.
func (c *Client) Create(ctx context.Context, params CreateParams) (*domain.TryOn, error) {
	var rec domain.TryOn
	if err := c.session.PostJSON(ctx, "/vton", params, &rec); err != nil {
		return nil, fmt.Errorf("tryon: %v: %w", err, domain.ErrRecordCreateFailed)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("tryon: create response missing id: %w", domain.ErrRecordCreateFailed)
	}
	return &rec, nil
}

// List fetches records matching the query. The server answers either a bare
// array or a {"data": [...]} envelope; any other shape is a parse error.
func (c *Client) List(ctx context.Context, query ListQuery) ([]domain.TryOn, error) {
	raw, err := c.session.Do(ctx, http.MethodGet, "/vton", query.values(), nil)
	if err != nil {
		return nil, fmt.Errorf("tryon: list: %w", err)
	}
	return decodeList(raw)
}

// Update patches a record.
func (c *Client) Update(ctx context.Context, id string, patch UpdateParams) (*domain.TryOn, error) {
	var rec domain.TryOn
	if err := c.session.PutJSON(ctx, "/vton/"+url.PathEscape(id), patch, &rec); err != nil {
		return nil, fmt.Errorf("tryon: update %s: %w", id, err)
	}
	return &rec, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.session.Delete(ctx, "/vton/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("tryon: delete %s: %w", id, err)
	}
	return nil
}

type weaverJobRequest struct {
	TryOnID            string `json:"vton_id"`
	UserSnapKey        string `json:"user_snap_s3"`
	UncleanedOutfitKey string `json:"uncleaned_outfit_s3"`
}

type tailorJobRequest struct {
	TryOnID            string `json:"vton_id"`
	UncleanedOutfitKey string `json:"uncleaned_outfit_s3"`
}

// EnqueueWeaver queues the compose job producing the final try-on image.
func (c *Client) EnqueueWeaver(ctx context.Context, recordID, userSnapKey, outfitKey string) (*domain.Job, error) {
	var job domain.Job
	err := c.session.PostJSON(ctx, "/jobs/weaver", weaverJobRequest{
		TryOnID:            recordID,
		UserSnapKey:        userSnapKey,
		UncleanedOutfitKey: outfitKey,
	}, &job)
	if err != nil {
		return nil, fmt.Errorf("tryon: weaver for record %s: %v: %w", recordID, err, domain.ErrJobEnqueueFailed)
	}
	return &job, nil
}

// EnqueueTailor queues the outfit preparation job.
func (c *Client) EnqueueTailor(ctx context.Context, recordID, outfitKey string) (*domain.Job, error) {
	var job domain.Job
	err := c.session.PostJSON(ctx, "/jobs/tailor", tailorJobRequest{
		TryOnID:            recordID,
		UncleanedOutfitKey: outfitKey,
	}, &job)
	if err != nil {
		return nil, fmt.Errorf("tryon: tailor for record %s: %v: %w", recordID, err, domain.ErrJobEnqueueFailed)
	}
	return &job, nil
}

func decodeList(raw []byte) ([]domain.TryOn, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []domain.TryOn
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("tryon: decode list: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Data *[]domain.TryOn `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || envelope.Data == nil {
		return nil, fmt.Errorf("tryon: unexpected list payload shape")
	}
	return *envelope.Data, nil
}
