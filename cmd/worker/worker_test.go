package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/offerhub/internal/config"
	"github.com/unclebandit/offerhub/internal/queue"
)

func TestCheckConfigRequiresBroker(t *testing.T) {
	assert.Error(t, checkConfig(&config.Config{QueueBackend: config.QueueMemory}))
	assert.NoError(t, checkConfig(&config.Config{QueueBackend: config.QueueAMQP}))
}

type recordingRunner struct {
	jobs     []queue.Job
	deadline bool
	err      error
}

func (r *recordingRunner) RunJob(ctx context.Context, job queue.Job) error {
	r.jobs = append(r.jobs, job)
	_, r.deadline = ctx.Deadline()
	return r.err
}

func TestWorkerProcessesPublishedMessage(t *testing.T) {
	body, err := queue.EncodeJob(queue.Job{Kind: queue.JobNotify, Tenant: "credit_card", CampaignID: 12})
	require.NoError(t, err)

	job, err := queue.DecodeJob(body)
	require.NoError(t, err)

	runner := &recordingRunner{}
	require.NoError(t, newWorker(runner, nil).Handle(context.Background(), job))

	require.Len(t, runner.jobs, 1)
	assert.Equal(t, queue.JobNotify, runner.jobs[0].Kind)
	assert.Equal(t, "credit_card", runner.jobs[0].Tenant)
	assert.Equal(t, int64(12), runner.jobs[0].CampaignID)
	assert.True(t, runner.deadline)
}

func TestWorkerReturnsFailureForRequeue(t *testing.T) {
	job, err := queue.DecodeJob([]byte(`{"kind":"materialize","tenant":"loan","campaign_id":3}`))
	require.NoError(t, err)

	runner := &recordingRunner{err: errors.New("connection reset by peer")}
	err = newWorker(runner, nil).Handle(context.Background(), job)
	assert.ErrorIs(t, err, runner.err)
}

func TestWorkerRejectsMalformedMessage(t *testing.T) {
	_, err := queue.DecodeJob([]byte(`{"kind":"notify","tenant":"loan"}`))
	assert.Error(t, err)
}
