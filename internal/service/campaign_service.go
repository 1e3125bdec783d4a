// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/metrics"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/queue"
	"github.com/unclebandit/offerhub/internal/repository"
)

type CampaignService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	AssociationRepo repository.CampaignCustomerRepositoryInterface
	OfferRepo       repository.OfferRepositoryInterface
	TenantRepo      repository.TenantRepositoryInterface
	Pipeline        *ApprovalPipeline
	Notifier        *Notifier

	// Async publishes side effects to Queue instead of running them inline.
	Async bool
	Queue queue.Queue

	Now    func() time.Time
	Logger *slog.Logger
}

// CampaignInput is a validated create request.
type CampaignInput struct {
	Name              string
	Description       string
	SelectionCriteria criteria.Criteria
	StartDate         time.Time
	EndDate           time.Time
	OfferID           *int64
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// StageResult describes the side effect that followed a transition or a
// manual reprocess.
type StageResult struct {
	Stage      queue.JobKind     `json:"stage"`
	Queued     bool              `json:"queued,omitempty"`
	Pipeline   *PipelineResult   `json:"materialization,omitempty"`
	Activation *ActivationReport `json:"activation,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type UpdateResult struct {
	Campaign     *model.Campaign      `json:"campaign"`
	From         model.CampaignStatus `json:"from"`
	To           model.CampaignStatus `json:"to"`
	Transitioned bool                 `json:"transitioned"`
	SideEffect   *StageResult         `json:"side_effect,omitempty"`
}

var tenantNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

func (s *CampaignService) log() *slog.Logger { return logger(s.Logger) }

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// authorize fails with AuthorizationDeniedError unless username holds one of
// roles in tenant. It never touches campaign data.
func (s *CampaignService) authorize(ctx context.Context, username, tenant string, roles []model.Role) error {
	required := make([]string, len(roles))
	for i, r := range roles {
		required[i] = string(r)
	}
	if strings.TrimSpace(username) == "" {
		return appErrors.NewAuthorizationDenied(username, tenant, required)
	}
	held, err := s.TenantRepo.RolesFor(ctx, username, tenant)
	if err != nil {
		return err
	}
	if !held.HasAny(roles...) {
		return appErrors.NewAuthorizationDenied(username, tenant, required)
	}
	return nil
}

// ---- tenants ----

// CreateTenant registers a product line and makes its creator an admin of it.
func (s *CampaignService) CreateTenant(ctx context.Context, username, name, description string) (*model.Tenant, error) {
	if strings.TrimSpace(username) == "" {
		return nil, appErrors.NewAuthorizationDenied(username, name, []string{"authenticated user"})
	}
	if !tenantNamePattern.MatchString(name) {
		return nil, appErrors.NewValidation("name", "must be lowercase letters, digits or underscores")
	}
	t := &model.Tenant{Name: name, Description: description, CreatedBy: username, CreatedAt: s.now()}
	if err := s.TenantRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	if err := s.TenantRepo.AssignRole(ctx, username, name, model.RoleAdmin); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *CampaignService) GetTenant(ctx context.Context, username, name string) (*model.Tenant, error) {
	if err := s.authorize(ctx, username, name, readRoles); err != nil {
		return nil, err
	}
	return s.TenantRepo.Get(ctx, name)
}

// AssignRole grants role to member. Only tenant admins may do this.
func (s *CampaignService) AssignRole(ctx context.Context, username, tenant, member string, role model.Role) error {
	if err := s.authorize(ctx, username, tenant, []model.Role{model.RoleAdmin}); err != nil {
		return err
	}
	switch role {
	case model.RoleAdmin, model.RoleCreate, model.RoleApprover, model.RoleReadOnly:
	default:
		return appErrors.NewValidation("role", "unknown role "+string(role))
	}
	if strings.TrimSpace(member) == "" {
		return appErrors.NewValidation("username", "is required")
	}
	return s.TenantRepo.AssignRole(ctx, member, tenant, role)
}

// ---- offers ----

func (s *CampaignService) CreateOffer(ctx context.Context, username, tenant string, o *model.Offer) (*model.Offer, error) {
	if err := s.authorize(ctx, username, tenant, authorRoles); err != nil {
		return nil, err
	}
	o.TenantName = tenant
	o.CreatedBy = username
	o.Status = model.OfferDraft
	if o.Data == nil {
		o.Data = model.Attributes{}
	}
	if err := s.OfferRepo.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *CampaignService) GetOffer(ctx context.Context, username, tenant string, id int64) (*model.Offer, error) {
	if err := s.authorize(ctx, username, tenant, readRoles); err != nil {
		return nil, err
	}
	return s.OfferRepo.GetByID(ctx, tenant, id)
}

// ---- campaigns ----

func (s *CampaignService) CreateCampaign(ctx context.Context, username, tenant string, in CampaignInput) (*model.Campaign, error) {
	if err := s.authorize(ctx, username, tenant, authorRoles); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	if err := validateCriteria(in.SelectionCriteria); err != nil {
		return nil, err
	}
	if err := validateWindow(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	if err := s.checkOffer(ctx, tenant, in.OfferID); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		TenantName:        tenant,
		OfferID:           in.OfferID,
		Name:              strings.TrimSpace(in.Name),
		Description:       in.Description,
		SelectionCriteria: in.SelectionCriteria,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		Status:            model.CampaignDraft,
		CreatedBy:         username,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log().Info("campaign created", "tenant", tenant, "campaign_id", c.ID, "user", username)
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, username, tenant string, id int64) (*model.Campaign, error) {
	if err := s.authorize(ctx, username, tenant, readRoles); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(ctx, tenant, id)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, username, tenant string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if err := s.authorize(ctx, username, tenant, readRoles); err != nil {
		return nil, nil, err
	}
	if status != "" && !model.CampaignStatus(status).Valid() {
		return nil, nil, appErrors.NewValidation("status", "unknown campaign status "+status)
	}
	page, pageSize, offset := paginate(page, pageSize)

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, tenant, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, username, tenant string, id int64) (*CampaignDetails, error) {
	if err := s.authorize(ctx, username, tenant, readRoles); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

func (s *CampaignService) ListCampaignCustomers(ctx context.Context, username, tenant string, id int64, page, pageSize int, status string) ([]model.CampaignCustomer, map[string]int, error) {
	if err := s.authorize(ctx, username, tenant, readRoles); err != nil {
		return nil, nil, err
	}
	switch model.DeliveryStatus(status) {
	case "", model.DeliveryPending, model.DeliverySent, model.DeliveryAccepted, model.DeliveryDeclined:
	default:
		return nil, nil, appErrors.NewValidation("delivery_status", "unknown delivery status "+status)
	}
	if _, err := s.CampaignRepo.GetByID(ctx, tenant, id); err != nil {
		return nil, nil, err
	}
	page, pageSize, offset := paginate(page, pageSize)
	rows, err := s.AssociationRepo.List(ctx, tenant, id, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}
	return rows, map[string]int{"page": page, "page_size": pageSize}, nil
}

// UpdateCampaign applies field edits and/or a status transition.
//
// The caller is authorized before anything is read. Field edits are only
// accepted while the campaign is a draft. The new status is committed first;
// the side effect of entering it (materialization on approved, notification
// on active) runs afterwards. When that side effect fails, the committed
// campaign is still returned together with a SideEffectError.
func (s *CampaignService) UpdateCampaign(ctx context.Context, username, tenant string, id int64, upd model.CampaignUpdate) (*UpdateResult, error) {
	edits := upd.Name != nil || upd.Description != nil || upd.SelectionCriteria != nil ||
		upd.StartDate != nil || upd.EndDate != nil || upd.OfferID != nil
	if !edits && upd.Status == nil {
		return nil, appErrors.NewValidation("body", "nothing to update")
	}
	if edits {
		if err := s.authorize(ctx, username, tenant, authorRoles); err != nil {
			return nil, err
		}
	}
	if upd.Status != nil {
		if err := s.authorize(ctx, username, tenant, approverRoles); err != nil {
			return nil, err
		}
		if !upd.Status.Valid() {
			return nil, appErrors.NewValidation("status", "unknown campaign status "+string(*upd.Status))
		}
	}

	c, err := s.CampaignRepo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	to := from
	if upd.Status != nil {
		to = *upd.Status
	}

	if edits {
		if from != model.CampaignDraft {
			return nil, appErrors.NewInvalidTransition("campaign", string(from), "edited")
		}
		if err := s.validateEdits(ctx, tenant, c, upd); err != nil {
			return nil, err
		}
	}
	if to != from && !CanTransition(from, to) {
		return nil, appErrors.NewInvalidTransition("campaign", string(from), string(to))
	}

	upd.Apply(c)
	now := s.now()
	c.UpdatedAt = &now
	if err := s.CampaignRepo.Update(ctx, c, from); err != nil {
		return nil, err
	}

	res := &UpdateResult{Campaign: c, From: from, To: to, Transitioned: to != from}
	if !res.Transitioned {
		return res, nil
	}
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.log().Info("campaign status changed",
		"tenant", tenant, "campaign_id", id, "from", from, "to", to, "user", username)

	kind, ok := sideEffectFor(to)
	if !ok {
		return res, nil
	}
	res.SideEffect, err = s.runStage(ctx, kind, c)
	if err != nil {
		return res, appErrors.NewSideEffectError(string(kind), string(to), err)
	}
	return res, nil
}

// Reprocess re-runs a stage by hand. Both stages are idempotent.
func (s *CampaignService) Reprocess(ctx context.Context, username, tenant string, id int64, kind queue.JobKind) (*StageResult, error) {
	if err := s.authorize(ctx, username, tenant, approverRoles); err != nil {
		return nil, err
	}
	if kind != queue.JobMaterialize && kind != queue.JobNotify {
		return nil, appErrors.NewValidation("stage", "unknown stage "+string(kind))
	}
	c, err := s.CampaignRepo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !stageAllowed(kind, c.Status) {
		return nil, appErrors.NewInvalidTransition("campaign", string(c.Status), string(kind))
	}
	return s.runStage(ctx, kind, c)
}

// RecordResponse stores a customer's answer to a sent offer.
func (s *CampaignService) RecordResponse(ctx context.Context, username, tenant string, id int64, customerID uuid.UUID, status model.DeliveryStatus) (*model.CampaignCustomer, error) {
	if err := s.authorize(ctx, username, tenant, []model.Role{model.RoleAdmin, model.RoleCreate, model.RoleApprover}); err != nil {
		return nil, err
	}
	if status != model.DeliveryAccepted && status != model.DeliveryDeclined {
		return nil, appErrors.NewValidation("response", "must be accepted or declined")
	}
	cc, err := s.AssociationRepo.Get(ctx, tenant, id, customerID)
	if err != nil {
		return nil, err
	}
	if !cc.DeliveryStatus.CanMoveTo(status) {
		return nil, appErrors.NewInvalidTransition("delivery status", string(cc.DeliveryStatus), string(status))
	}
	if err := s.AssociationRepo.RecordResponse(ctx, tenant, id, customerID, status, s.now()); err != nil {
		return nil, err
	}
	return s.AssociationRepo.Get(ctx, tenant, id, customerID)
}

// RunJob executes a queued stage. It is the queue.Handler behind the worker.
// Jobs for campaigns that moved on are dropped, and so are failures a retry
// cannot fix.
func (s *CampaignService) RunJob(ctx context.Context, job queue.Job) error {
	c, err := s.CampaignRepo.GetByID(ctx, job.Tenant, job.CampaignID)
	if err != nil {
		var nf *appErrors.ErrCampaignNotFound
		if errors.As(err, &nf) {
			s.log().Warn("dropping job for missing campaign", "job", job.String())
			return nil
		}
		return err
	}
	if !stageAllowed(job.Kind, c.Status) {
		s.log().Info("dropping stale job", "job", job.String(), "status", c.Status)
		return nil
	}

	_, err = s.execute(ctx, job.Kind, c)
	if err != nil && permanent(err) {
		s.log().Error("job failed permanently", "job", job.String(), "error", err)
		return nil
	}
	return err
}

func (s *CampaignService) runStage(ctx context.Context, kind queue.JobKind, c *model.Campaign) (*StageResult, error) {
	if s.Async {
		job := queue.Job{Kind: kind, Tenant: c.TenantName, CampaignID: c.ID}
		if err := s.Queue.Publish(ctx, job); err != nil {
			return &StageResult{Stage: kind, Error: err.Error()}, err
		}
		return &StageResult{Stage: kind, Queued: true}, nil
	}
	return s.execute(ctx, kind, c)
}

func (s *CampaignService) execute(ctx context.Context, kind queue.JobKind, c *model.Campaign) (*StageResult, error) {
	res := &StageResult{Stage: kind}
	switch kind {
	case queue.JobMaterialize:
		out, err := s.Pipeline.Run(ctx, c)
		if err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Pipeline = out
	case queue.JobNotify:
		report, err := s.Notifier.Activate(ctx, c)
		res.Activation = report
		if report != nil {
			res.Summary = report.Summary()
		}
		if err != nil {
			res.Error = err.Error()
			return res, err
		}
	default:
		return nil, appErrors.NewValidation("stage", "unknown stage "+string(kind))
	}
	return res, nil
}

func (s *CampaignService) validateEdits(ctx context.Context, tenant string, c *model.Campaign, upd model.CampaignUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return appErrors.NewValidation("name", "is required")
	}
	if upd.SelectionCriteria != nil {
		if err := validateCriteria(upd.SelectionCriteria); err != nil {
			return err
		}
	}
	start, end := c.StartDate, c.EndDate
	if upd.StartDate != nil {
		start = *upd.StartDate
	}
	if upd.EndDate != nil {
		end = *upd.EndDate
	}
	if err := validateWindow(start, end); err != nil {
		return err
	}
	return s.checkOffer(ctx, tenant, upd.OfferID)
}

func (s *CampaignService) checkOffer(ctx context.Context, tenant string, offerID *int64) error {
	if offerID == nil {
		return nil
	}
	if _, err := s.OfferRepo.GetByID(ctx, tenant, *offerID); err != nil {
		var nf *appErrors.ErrNotFound
		if errors.As(err, &nf) {
			return appErrors.NewValidation("offer_id", "offer does not exist in tenant "+tenant)
		}
		return err
	}
	return nil
}

// validateCriteria parses criteria at the boundary so a stored campaign
// always compiles later.
func validateCriteria(c criteria.Criteria) error {
	if len(c) == 0 {
		return appErrors.NewValidation("selection_criteria", "at least one criterion is required")
	}
	preds, err := criteria.Compile(c)
	if err != nil {
		return err
	}
	return query.Check(model.CustomerEntity, preds)
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.NewValidation("start_date", "start_date and end_date are required")
	}
	if end.Before(start) {
		return appErrors.NewValidation("end_date", "must not be before start_date")
	}
	return nil
}

func paginate(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

func permanent(err error) bool {
	var (
		ce *appErrors.CompileError
		se *appErrors.SchemaMismatchError
	)
	return errors.As(err, &ce) || errors.As(err, &se)
}
