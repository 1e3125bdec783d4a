package service

import (
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/queue"
)

// campaignTransitions lists the allowed next statuses. completed is terminal.
var campaignTransitions = map[model.CampaignStatus][]model.CampaignStatus{
	model.CampaignDraft:    {model.CampaignApproved, model.CampaignCompleted},
	model.CampaignApproved: {model.CampaignActive, model.CampaignDraft, model.CampaignCompleted},
	model.CampaignActive:   {model.CampaignPaused, model.CampaignCompleted},
	model.CampaignPaused:   {model.CampaignActive, model.CampaignCompleted},
}

// CanTransition reports whether a campaign may move from -> to.
func CanTransition(from, to model.CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sideEffectFor is the pipeline stage that runs after entering status.
func sideEffectFor(status model.CampaignStatus) (queue.JobKind, bool) {
	switch status {
	case model.CampaignApproved:
		return queue.JobMaterialize, true
	case model.CampaignActive:
		return queue.JobNotify, true
	}
	return "", false
}

// stageAllowed reports whether a stage may run for a campaign in status.
// Materialization is meaningful once approved and until completion;
// notification only while active.
func stageAllowed(kind queue.JobKind, status model.CampaignStatus) bool {
	switch kind {
	case queue.JobMaterialize:
		return status == model.CampaignApproved || status == model.CampaignActive || status == model.CampaignPaused
	case queue.JobNotify:
		return status == model.CampaignActive
	}
	return false
}

var (
	readRoles     = []model.Role{model.RoleAdmin, model.RoleCreate, model.RoleApprover, model.RoleReadOnly}
	authorRoles   = []model.Role{model.RoleAdmin, model.RoleCreate}
	approverRoles = []model.Role{model.RoleAdmin, model.RoleApprover}
)
