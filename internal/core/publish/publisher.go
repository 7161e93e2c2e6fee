package publish

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"wp-bulkpost/internal/config"
	"wp-bulkpost/internal/content"
	"wp-bulkpost/internal/infra/logx"
	"wp-bulkpost/internal/wp"
)

// PostStatus is the status every created entry gets.
const PostStatus = "publish"

// API defines the remote calls the publisher needs
type API interface {
	UploadMedia(ctx context.Context, m wp.MediaUpload) (wp.Media, error)
	CreatePost(ctx context.Context, in wp.PostInput) (wp.Post, error)
}

// Options holds the retry policy of a Publisher.
type Options struct {
	EntryMaxAttempts int
	// ItemMaxAttempts bounds the rounds of ProcessItem. Each round may call
	// CreateEntry, so one item sends at most
	// ItemMaxAttempts*EntryMaxAttempts post requests (25 by default), and
	// a post whose 201 answer was lost can be created more than once.
	ItemMaxAttempts int
	// UploadMaxAttempts bounds UploadAsset; 0 keeps retrying until success
	// or cancellation.
	UploadMaxAttempts int
	RetryDelay        time.Duration
	Clock             Clock
}

// OptionsFromConfig maps the publish section of the configuration.
func OptionsFromConfig(pc config.PublishConfig) Options {
	return Options{
		EntryMaxAttempts:  pc.EntryMaxAttempts,
		ItemMaxAttempts:   pc.ItemMaxAttempts,
		UploadMaxAttempts: pc.UploadMaxAttempts,
		RetryDelay:        pc.RetryDelay,
		Clock:             RealClock(),
	}
}

// Publisher uploads an item's asset and creates the entry that features it.
type Publisher struct {
	api  API
	tpl  *content.Template
	opts Options
}

// NewPublisher creates a new publisher. Zero attempt bounds fall back to
// the defaults.
func NewPublisher(api API, tpl *content.Template, opts Options) *Publisher {
	if opts.EntryMaxAttempts <= 0 {
		opts.EntryMaxAttempts = config.DefaultEntryMaxAttempts
	}
	if opts.ItemMaxAttempts <= 0 {
		opts.ItemMaxAttempts = config.DefaultItemMaxAttempts
	}
	if opts.UploadMaxAttempts < 0 {
		opts.UploadMaxAttempts = 0
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if tpl == nil {
		tpl = content.Default()
	}
	return &Publisher{api: api, tpl: tpl, opts: opts}
}

func (p *Publisher) wait(ctx context.Context) error {
	return p.opts.Clock.Sleep(ctx, p.opts.RetryDelay)
}

// UploadAsset uploads the item's file and returns the media ID. A non-201
// answer is logged and retried after the fixed delay, without limit unless
// UploadMaxAttempts is set. Local file and transport errors are returned.
func (p *Publisher) UploadAsset(ctx context.Context, item Item) (int, error) {
	up := wp.MediaUpload{
		Path:        item.AssetPath,
		Caption:     item.Name,
		Description: item.Description,
		AltText:     item.Name,
	}
	for attempt := 1; ; attempt++ {
		media, err := p.api.UploadMedia(ctx, up)
		if err == nil {
			logx.Infow("asset uploaded", logx.FieldItem, item.Name, logx.FieldMediaID, media.ID)
			return media.ID, nil
		}
		se, ok := wp.IsStatus(err)
		if !ok {
			return 0, err
		}
		logx.Errorw("asset upload failed",
			logx.FieldItem, item.Name, logx.FieldStatus, se.Code, logx.FieldAttempt, attempt)
		if p.opts.UploadMaxAttempts > 0 && attempt >= p.opts.UploadMaxAttempts {
			return 0, errors.Wrapf(ErrUploadExhausted, "%q after %d attempts (last %s)", item.Name, attempt, se.Status)
		}
		if err := p.wait(ctx); err != nil {
			return 0, err
		}
	}
}

// CreateEntry publishes a post for item featuring assetID and returns its
// canonical URL. Non-201 answers and transient transport errors are retried
// up to EntryMaxAttempts times; after that ErrEntryNotCreated is returned.
func (p *Publisher) CreateEntry(ctx context.Context, assetID int, item Item) (string, error) {
	category, err := strconv.Atoi(strings.TrimSpace(item.Category))
	if err != nil {
		return "", errors.Wrapf(err, "category of %q", item.Name)
	}
	in := wp.PostInput{
		Title:         item.Name,
		Status:        PostStatus,
		Content:       p.tpl.Render(item.Description, item.TargetLink),
		FeaturedMedia: assetID,
		Categories:    category,
	}

	n := p.opts.EntryMaxAttempts
	for attempt := 1; attempt <= n; attempt++ {
		post, err := p.api.CreatePost(ctx, in)
		if err == nil {
			url := post.GUID.Rendered
			if url == "" {
				url = post.Link
			}
			logx.Infow("entry created", logx.FieldItem, item.Name, logx.FieldEntryURL, url)
			return url, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		se, isStatus := wp.IsStatus(err)
		switch {
		case isStatus:
			logx.Errorw("entry create failed",
				logx.FieldItem, item.Name, logx.FieldStatus, se.Code, logx.FieldAttempt, attempt)
		case wp.IsTransient(err):
			logx.Errorw("entry create failed",
				logx.FieldItem, item.Name, logx.FieldAttempt, attempt, logx.FieldError, err)
		default:
			return "", err
		}
		if attempt < n {
			if err := p.wait(ctx); err != nil {
				return "", err
			}
		}
	}
	return "", errors.Wrapf(ErrEntryNotCreated, "%q after %d attempts", item.Name, n)
}

// ProcessItem uploads the asset once, then retries upload and entry
// creation together up to ItemMaxAttempts times. Every failed round costs
// one attempt. When the attempts run out the item is dropped and
// ErrItemDropped is returned.
func (p *Publisher) ProcessItem(ctx context.Context, item Item) (*Result, error) {
	rc := &wp.RetryCounters{}
	ctx = wp.WithRetryCounters(ctx, rc)
	defer func() {
		if n := rc.Total.Load(); n > 0 {
			logx.Infow("transport retries", logx.FieldItem, item.Name, logx.FieldCount, n,
				"retries_429", rc.Status429.Load(), "retries_5xx", rc.Status5xx.Load(), "retries_net", rc.Net.Load())
		}
	}()

	assetID, err := p.UploadAsset(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Errorw("asset upload failed", logx.FieldItem, item.Name, logx.FieldPath, item.AssetPath, logx.FieldError, err)
		assetID = 0
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}

	n := p.opts.ItemMaxAttempts
	for attempt := 1; attempt <= n; attempt++ {
		url, err := p.publishOnce(ctx, item, &assetID)
		if err == nil {
			return &Result{Item: item, EntryURL: url}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Errorw("publish attempt failed",
			logx.FieldItem, item.Name, logx.FieldAttempt, attempt, logx.FieldError, err)
		if attempt < n {
			if err := p.wait(ctx); err != nil {
				return nil, err
			}
		}
	}
	logx.Errorw("item dropped", logx.FieldItem, item.Name, logx.FieldPath, item.AssetPath)
	return nil, errors.Wrapf(ErrItemDropped, "%q after %d attempts", item.Name, n)
}

// publishOnce uploads when no asset is held yet and then creates the entry.
// The asset ID survives failed entry creation so it is not uploaded twice.
func (p *Publisher) publishOnce(ctx context.Context, item Item, assetID *int) (string, error) {
	if *assetID == 0 {
		id, err := p.UploadAsset(ctx, item)
		if err != nil {
			return "", err
		}
		*assetID = id
	}
	if *assetID == 0 {
		return "", errors.Newf("server returned no media id for %q", item.Name)
	}
	return p.CreateEntry(ctx, *assetID, item)
}
