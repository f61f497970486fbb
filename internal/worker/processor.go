package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/notify"
	"github.com/postdeck/postdeck/internal/platform"
	"github.com/postdeck/postdeck/internal/repository"
)

// ErrMediaMissing is a data-integrity failure: the post references a media
// set that does not exist or holds no URLs.
var ErrMediaMissing = errors.New("media set missing or empty")

// ErrNoAccount means the post has no social account attached.
var ErrNoAccount = errors.New("no social account attached to post")

// MediaCleaner removes the underlying files of a media set once nothing
// references them. Satisfied by service.R2Service.
type MediaCleaner interface {
	DeleteFiles(ctx context.Context, fileURLs []string) error
}

// Processor runs one claimed job end to end: resolve media and token,
// dispatch to the platform publisher, record the outcome.
type Processor struct {
	sr          repository.ScheduleRepository
	pr          repository.PostRepository
	ms          repository.MediaSetRepository
	tokens      *TokenCache
	registry    *platform.Registry
	cleaner     MediaCleaner
	notifier    notify.Dispatcher
	maxAttempts int
}

func NewProcessor(
	sr repository.ScheduleRepository,
	pr repository.PostRepository,
	ms repository.MediaSetRepository,
	tokens *TokenCache,
	registry *platform.Registry,
	cleaner MediaCleaner,
	notifier notify.Dispatcher,
	maxAttempts int) *Processor {
	return &Processor{
		sr:          sr,
		pr:          pr,
		ms:          ms,
		tokens:      tokens,
		registry:    registry,
		cleaner:     cleaner,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

// Process never lets a single job's failure escape: every error, including a
// panic inside an adapter, is normalized into the job's failure handling.
func (p *Processor) Process(ctx context.Context, cj *models.ClaimedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = p.fail(ctx, cj, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := p.pr.UpdateStatus(ctx, models.PostStatusProcessing, cj.Post.ID); err != nil {
		slog.Info(err.Error())
	}

	mediaSet, mediaURLs, resolveErr := p.resolveMedia(ctx, &cj.Post)
	if resolveErr != nil {
		return p.fail(ctx, cj, mediaSet, resolveErr)
	}

	if cj.Account == nil {
		return p.fail(ctx, cj, mediaSet, ErrNoAccount)
	}

	token, tokenErr := p.tokens.GetToken(ctx, cj.Account)
	if tokenErr != nil {
		return p.fail(ctx, cj, mediaSet, tokenErr)
	}

	pub, pubErr := p.registry.Get(cj.Post.Platform)
	if pubErr != nil {
		return p.fail(ctx, cj, mediaSet, pubErr)
	}

	creds := platform.Credentials{
		AccessToken: token,
		AccountID:   cj.Account.AccountID,
	}
	req := platform.PublishRequest{
		PostType:     cj.Post.PostType,
		Caption:      cj.Post.Caption,
		MediaURLs:    mediaURLs,
		TaggedPeople: cj.Post.TaggedPeople,
	}

	result, publishErr := pub.Publish(ctx, creds, req)
	if publishErr != nil {
		return p.fail(ctx, cj, mediaSet, publishErr)
	}
	if result == nil || result.ExternalID == "" {
		return p.fail(ctx, cj, mediaSet, errors.New("publisher returned no external post id"))
	}

	return p.succeed(ctx, cj, mediaSet, pub, token, result, mediaURLs)
}

func (p *Processor) resolveMedia(ctx context.Context, post *models.Post) (*models.MediaSet, []string, error) {
	if post.MediaSetID == nil {
		return nil, nil, nil
	}

	mediaSet, err := p.ms.GetByID(ctx, *post.MediaSetID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch media set %d: %w", *post.MediaSetID, err)
	}
	if mediaSet == nil || len(mediaSet.URLs) == 0 {
		return mediaSet, nil, ErrMediaMissing
	}

	return mediaSet, mediaSet.URLs, nil
}

func (p *Processor) succeed(ctx context.Context, cj *models.ClaimedJob, mediaSet *models.MediaSet,
	pub platform.Publisher, token string, result *platform.PublishResult, mediaURLs []string) error {

	publishedAt := time.Now().UTC()
	if err := p.pr.MarkPublished(ctx, cj.Post.ID, result.ExternalID, publishedAt); err != nil {
		slog.Info(err.Error())
	}
	if err := p.sr.MarkPublished(ctx, cj.Job.ID); err != nil {
		slog.Info(err.Error())
	}
	cj.Post.ExternalPostID = result.ExternalID

	// First comment is a separate operation with its own failure domain.
	// It never reverts the publish outcome.
	if cj.Post.FirstComment != "" {
		if commenter, ok := pub.(platform.Commenter); ok {
			if err := commenter.AddComment(ctx, token, result.ExternalID, cj.Post.FirstComment); err != nil {
				log.Printf("First comment failed for post %d: %v", cj.Post.ID, err)
			}
		}
	}

	p.attachChildren(ctx, cj, pub, token, result.ExternalID, mediaURLs)

	p.releaseMedia(ctx, mediaSet)

	if err := p.notifier.Notify(ctx, &cj.Post, notify.OutcomeSuccess, ""); err != nil {
		log.Printf("Success notification failed for post %d: %v", cj.Post.ID, err)
	}

	return nil
}

// attachChildren enriches the stored post with platform-side media metadata,
// falling back to the originally uploaded URLs when the fetch fails.
func (p *Processor) attachChildren(ctx context.Context, cj *models.ClaimedJob, pub platform.Publisher,
	token, externalID string, mediaURLs []string) {

	children, err := pub.FetchChildren(ctx, token, externalID)
	if err != nil || len(children) == 0 {
		if err != nil {
			log.Printf("Child media fetch failed for post %d: %v", cj.Post.ID, err)
		}
		children = make([]models.MediaChild, 0, len(mediaURLs))
		for i, mediaURL := range mediaURLs {
			children = append(children, models.MediaChild{
				ExternalID:   externalID,
				MediaURL:     mediaURL,
				DisplayOrder: i,
			})
		}
	}
	if len(children) == 0 {
		return
	}

	if err := p.pr.AttachMediaChildren(ctx, cj.Post.ID, children); err != nil {
		log.Printf("Attaching media children failed for post %d: %v", cj.Post.ID, err)
	}
}

func (p *Processor) fail(ctx context.Context, cj *models.ClaimedJob, mediaSet *models.MediaSet, cause error) error {
	attempts := cj.Job.Attempts + 1
	message := cause.Error()

	if err := p.pr.MarkFailed(ctx, cj.Post.ID, message, attempts); err != nil {
		slog.Info(err.Error())
	}

	if attempts < p.maxAttempts {
		if err := p.sr.Requeue(ctx, cj.Job.ID, attempts); err != nil {
			slog.Info(err.Error())
		}
		log.Printf("Post %d failed (attempt %d/%d), requeued: %v", cj.Post.ID, attempts, p.maxAttempts, cause)
		return cause
	}

	if err := p.sr.MarkFailed(ctx, cj.Job.ID, attempts); err != nil {
		slog.Info(err.Error())
	}

	p.releaseMedia(ctx, mediaSet)

	if err := p.notifier.Notify(ctx, &cj.Post, notify.OutcomeFailure, message); err != nil {
		log.Printf("Failure notification failed for post %d: %v", cj.Post.ID, err)
	}

	log.Printf("Post %d permanently failed after %d attempts: %v", cj.Post.ID, attempts, cause)
	return cause
}

// releaseMedia drops this destination's reference and deletes the files once
// the count reaches zero. Only called on terminal outcomes.
func (p *Processor) releaseMedia(ctx context.Context, mediaSet *models.MediaSet) {
	if mediaSet == nil {
		return
	}

	refCount, err := p.ms.DecrementRef(ctx, mediaSet.ID)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if refCount > 0 {
		return
	}

	if err := p.cleaner.DeleteFiles(ctx, mediaSet.URLs); err != nil {
		log.Printf("Media cleanup failed for media set %d: %v", mediaSet.ID, err)
		return
	}
	if err := p.ms.Remove(ctx, mediaSet.ID); err != nil {
		slog.Info(err.Error())
	}
}
