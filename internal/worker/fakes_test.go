package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/notify"
	"github.com/postdeck/postdeck/internal/platform"
	"github.com/postdeck/postdeck/internal/repository"
)

type fakeScheduleRepo struct {
	mu sync.Mutex

	due       int
	claimable []*models.ClaimedJob
	claimErr  error

	claimCalls    int
	claimedBy     []string
	requeued      map[int64]int
	markedDone    []int64
	markedFailed  map[int64]int
	releasedBy    []string
	stuckReleases int
	staleSweeps   int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{
		requeued:     make(map[int64]int),
		markedFailed: make(map[int64]int),
	}
}

func (f *fakeScheduleRepo) GetByID(ctx context.Context, id int64) (*models.ScheduleJob, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*models.ClaimedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.claimCalls++
	f.claimedBy = append(f.claimedBy, workerID)
	if f.claimErr != nil {
		return nil, f.claimErr
	}

	if limit > len(f.claimable) {
		limit = len(f.claimable)
	}
	batch := f.claimable[:limit]
	f.claimable = f.claimable[limit:]
	f.due -= len(batch)
	return batch, nil
}

func (f *fakeScheduleRepo) CountDuePending(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakeScheduleRepo) ReleaseAllLockedBy(ctx context.Context, workerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releasedBy = append(f.releasedBy, workerID)
	return 0, nil
}

func (f *fakeScheduleRepo) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuckReleases++
	return 0, nil
}

func (f *fakeScheduleRepo) FailStalePending(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleSweeps++
	return 0, nil
}

func (f *fakeScheduleRepo) Requeue(ctx context.Context, jobID int64, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued[jobID] = attempts
	return nil
}

func (f *fakeScheduleRepo) MarkPublished(ctx context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedDone = append(f.markedDone, jobID)
	return nil
}

func (f *fakeScheduleRepo) MarkFailed(ctx context.Context, jobID int64, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedFailed[jobID] = attempts
	return nil
}

func (f *fakeScheduleRepo) Stats(ctx context.Context) (*models.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.QueueStats{Pending: int64(f.due)}, nil
}

type publishedRecord struct {
	externalID  string
	publishedAt time.Time
}

type failedRecord struct {
	message  string
	attempts int
}

type fakePostRepo struct {
	mu        sync.Mutex
	statuses  map[int64][]string
	published map[int64]publishedRecord
	failed    map[int64]failedRecord
	children  map[int64][]models.MediaChild
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{
		statuses:  make(map[int64][]string),
		published: make(map[int64]publishedRecord),
		failed:    make(map[int64]failedRecord),
		children:  make(map[int64][]models.MediaChild),
	}
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[postID] = append(f.statuses[postID], status)
	return nil
}

func (f *fakePostRepo) MarkPublished(ctx context.Context, postID int64, externalID string, publishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[postID] = publishedRecord{externalID: externalID, publishedAt: publishedAt}
	return nil
}

func (f *fakePostRepo) MarkFailed(ctx context.Context, postID int64, message string, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[postID] = failedRecord{message: message, attempts: attempts}
	return nil
}

func (f *fakePostRepo) AttachMediaChildren(ctx context.Context, postID int64, children []models.MediaChild) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[postID] = children
	return nil
}

type fakeMediaSetRepo struct {
	mu      sync.Mutex
	sets    map[int64]*models.MediaSet
	removed []int64
}

func newFakeMediaSetRepo() *fakeMediaSetRepo {
	return &fakeMediaSetRepo{sets: make(map[int64]*models.MediaSet)}
}

func (f *fakeMediaSetRepo) GetByID(ctx context.Context, id int64) (*models.MediaSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, ok := f.sets[id]
	if !ok {
		return nil, nil
	}
	copied := *ms
	return &copied, nil
}

func (f *fakeMediaSetRepo) DecrementRef(ctx context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, ok := f.sets[id]
	if !ok {
		return 0, errors.New("media set not found")
	}
	if ms.RefCount > 0 {
		ms.RefCount--
	}
	return ms.RefCount, nil
}

func (f *fakeMediaSetRepo) Remove(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sets, id)
	f.removed = append(f.removed, id)
	return nil
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[int64]*models.Credential
	gets  int
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[int64]*models.Credential)}
}

func (f *fakeCredentialRepo) GetByRef(ctx context.Context, ref int64) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	cred, ok := f.creds[ref]
	if !ok {
		return nil, nil
	}
	return cred, nil
}

func (f *fakeCredentialRepo) ListExpiring(ctx context.Context, within time.Duration) ([]*models.Credential, error) {
	return nil, nil
}

func (f *fakeCredentialRepo) SetToken(ctx context.Context, ref int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

// fakePublisher implements platform.Publisher and platform.Commenter.
type fakePublisher struct {
	mu           sync.Mutex
	publishFn    func(ctx context.Context, creds platform.Credentials, req platform.PublishRequest) (*platform.PublishResult, error)
	childrenFn   func(ctx context.Context, token, externalID string) ([]models.MediaChild, error)
	commentErr   error
	publishes    int
	comments     []string
	childFetches int
}

func (f *fakePublisher) Publish(ctx context.Context, creds platform.Credentials, req platform.PublishRequest) (*platform.PublishResult, error) {
	f.mu.Lock()
	f.publishes++
	fn := f.publishFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, creds, req)
	}
	return &platform.PublishResult{ExternalID: "ext_1"}, nil
}

func (f *fakePublisher) FetchChildren(ctx context.Context, token, externalID string) ([]models.MediaChild, error) {
	f.mu.Lock()
	f.childFetches++
	fn := f.childrenFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, externalID)
	}
	return nil, errors.New("children unavailable")
}

func (f *fakePublisher) AddComment(ctx context.Context, token, externalID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, text)
	return nil
}

type fakeCleaner struct {
	mu      sync.Mutex
	deleted [][]string
	err     error
}

func (f *fakeCleaner) DeleteFiles(ctx context.Context, fileURLs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, fileURLs)
	return nil
}

type notification struct {
	postID  int64
	outcome string
	details string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(ctx context.Context, post *models.Post, outcome, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{postID: post.ID, outcome: outcome, details: details})
	return nil
}

var (
	_ notify.Dispatcher               = (*fakeNotifier)(nil)
	_ repository.ScheduleRepository   = (*fakeScheduleRepo)(nil)
	_ repository.PostRepository       = (*fakePostRepo)(nil)
	_ repository.MediaSetRepository   = (*fakeMediaSetRepo)(nil)
	_ repository.CredentialRepository = (*fakeCredentialRepo)(nil)
	_ platform.Publisher              = (*fakePublisher)(nil)
	_ platform.Commenter              = (*fakePublisher)(nil)
)
