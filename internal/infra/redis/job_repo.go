package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

const (
	jobKeyPrefix = "imgq:job:"
	waitingKey   = "imgq:jobs:waiting"
	inFlightKey  = "imgq:jobs:inflight"
	indexKey     = "imgq:jobs:index"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo keeps job records as hashes, the waiting queue as a list and the
// in-flight set as a set, all in Redis. Every mutation is a field-level merge
// so concurrent writers (admission vs. webhook ingestion) never clobber each
// other's fields.
type JobRepo struct {
	client *Client
}

func NewJobRepo(client *Client) *JobRepo {
	return &JobRepo{client: client}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (r *JobRepo) Enqueue(ctx context.Context, job *model.Job) error {
	reqJSON, err := model.EncodeRequest(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	fields := map[string]interface{}{
		"user_id":          job.UserID,
		"status":           string(job.Status),
		"request":          string(reqJSON),
		"enqueued_at":      job.EnqueuedAt.Format(time.RFC3339Nano),
		"on_demand_credit": strconv.FormatBool(job.OnDemandCredit),
	}
	_, err = r.client.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(job.ID), fields)
		pipe.RPush(ctx, waitingKey, job.ID)
		pipe.SAdd(ctx, indexKey, job.ID)
		return nil
	})
	return err
}

func (r *JobRepo) Find(ctx context.Context, id string) (*model.Job, error) {
	m, err := r.client.cli.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, domain.ErrNotFound
	}
	return parseJob(id, m)
}

func (r *JobRepo) Update(ctx context.Context, id string, upd model.JobUpdate) error {
	fields := map[string]interface{}{}
	if upd.Status != nil {
		fields["status"] = string(*upd.Status)
	}
	if upd.StartedAt != nil {
		fields["started_at"] = upd.StartedAt.Format(time.RFC3339Nano)
	}
	if upd.Progress != nil {
		fields["progress"] = strconv.Itoa(*upd.Progress)
	}
	if upd.ImageURL != nil {
		fields["image_url"] = *upd.ImageURL
	}
	if upd.Buttons != nil {
		b, err := json.Marshal(upd.Buttons)
		if err != nil {
			return err
		}
		fields["buttons"] = string(b)
	}
	if upd.MessageID != nil {
		fields["message_id"] = *upd.MessageID
	}
	if upd.Reason != nil {
		fields["reason"] = *upd.Reason
	}
	if len(fields) == 0 {
		return nil
	}
	return r.client.cli.HSet(ctx, jobKey(id), fields).Err()
}

func (r *JobRepo) Remove(ctx context.Context, id string) error {
	_, err := r.client.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(id))
		pipe.LRem(ctx, waitingKey, 0, id)
		pipe.SRem(ctx, inFlightKey, id)
		pipe.SRem(ctx, indexKey, id)
		return nil
	})
	return err
}

func (r *JobRepo) WaitingPosition(ctx context.Context, id string) (int, error) {
	pos, err := r.client.cli.LPos(ctx, waitingKey, id, redis.LPosArgs{}).Result()
	if err == redis.Nil {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return int(pos), nil
}

// claimScript is the one true critical section of the queue: it computes the
// spare capacity and pops-and-claims in a single server-side step, so any
// number of concurrent admitters can never jointly overshoot the capacity.
var claimScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local spare = capacity - redis.call("SCARD", KEYS[2])
local claimed = {}
while #claimed < spare do
	local id = redis.call("LPOP", KEYS[1])
	if not id then
		break
	end
	redis.call("SADD", KEYS[2], id)
	claimed[#claimed + 1] = id
end
return claimed`)

func (r *JobRepo) ClaimBatch(ctx context.Context, capacity int) ([]string, error) {
	res, err := claimScript.Run(ctx, r.client.cli, []string{waitingKey, inFlightKey}, capacity).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("claim script returned %T", res)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("claim script returned element %T", v)
		}
		ids = append(ids, s)
	}
	return ids, nil
}

func (r *JobRepo) ReleaseInFlight(ctx context.Context, id string) error {
	return r.client.cli.SRem(ctx, inFlightKey, id).Err()
}

func (r *JobRepo) ListIDs(ctx context.Context) ([]string, error) {
	return r.client.cli.SMembers(ctx, indexKey).Result()
}

func parseJob(id string, m map[string]string) (*model.Job, error) {
	job := &model.Job{
		ID:        id,
		UserID:    m["user_id"],
		Status:    model.JobStatus(m["status"]),
		ImageURL:  m["image_url"],
		MessageID: m["message_id"],
		Reason:    m["reason"],
	}
	req, err := model.DecodeRequest([]byte(m["request"]))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	job.Request = req
	if v := m["enqueued_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("job %s enqueued_at: %w", id, err)
		}
		job.EnqueuedAt = t
	}
	if v := m["started_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("job %s started_at: %w", id, err)
		}
		job.StartedAt = t
	}
	if v := m["progress"]; v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("job %s progress: %w", id, err)
		}
		job.Progress = p
	}
	if v := m["buttons"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Buttons); err != nil {
			return nil, fmt.Errorf("job %s buttons: %w", id, err)
		}
	}
	job.OnDemandCredit = m["on_demand_credit"] == "true"
	return job, nil
}
