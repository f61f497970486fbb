package models

import "time"

type ScheduleJob struct {
	ID        int64      `db:"id" json:"id"`
	PostID    int64      `db:"post_id" json:"post_id"`
	Status    string     `db:"status" json:"status"`
	RunAt     time.Time  `db:"run_at" json:"run_at"`
	LockedAt  *time.Time `db:"locked_at" json:"locked_at"`
	WorkerID  *string    `db:"worker_id" json:"worker_id"`
	Attempts  int        `db:"attempts" json:"attempts"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ClaimedJob is a schedule row hydrated with everything the processor
// needs: the post content and the account it publishes to.
type ClaimedJob struct {
	Job     ScheduleJob
	Post    Post
	Account *SocialAccount
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusPublished  = "published"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// QueueStats is a per-status row count snapshot of the schedule table.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
