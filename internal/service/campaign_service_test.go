package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/queue"
	"github.com/unclebandit/offerhub/internal/service"
)

type harness struct {
	svc       *service.CampaignService
	campaigns *fakeCampaigns
	assoc     *fakeAssociations
	customers *fakeCustomers
	offers    *fakeOffers
	tenants   *fakeTenants
	sender    *fakeSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		campaigns: newFakeCampaigns(),
		customers: premiumCustomers(),
		offers:    &fakeOffers{rows: map[int64]*model.Offer{}},
		tenants:   newFakeTenants(),
		sender:    &fakeSender{},
	}
	h.assoc = newFakeAssociations(h.customers)
	h.svc = &service.CampaignService{
		CampaignRepo:    h.campaigns,
		AssociationRepo: h.assoc,
		OfferRepo:       h.offers,
		TenantRepo:      h.tenants,
		Pipeline:        newPipeline(h.customers, h.assoc, &fakeCatalog{}),
		Notifier:        &service.Notifier{Associations: h.assoc, Offers: h.offers, Sender: h.sender, Concurrency: 2},
	}

	ctx := context.Background()
	_, err := h.svc.CreateTenant(ctx, "root", "credit_card", "Credit cards")
	require.NoError(t, err)
	require.NoError(t, h.svc.AssignRole(ctx, "root", "credit_card", "maya", model.RoleCreate))
	require.NoError(t, h.svc.AssignRole(ctx, "root", "credit_card", "omar", model.RoleApprover))
	require.NoError(t, h.svc.AssignRole(ctx, "root", "credit_card", "rita", model.RoleReadOnly))
	return h
}

func (h *harness) draft(t *testing.T, c criteria.Criteria) *model.Campaign {
	t.Helper()
	camp, err := h.svc.CreateCampaign(context.Background(), "maya", "credit_card", service.CampaignInput{
		Name:              "Premium push",
		SelectionCriteria: c,
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return camp
}

func statusUpdate(s model.CampaignStatus) model.CampaignUpdate {
	return model.CampaignUpdate{Status: &s}
}

func TestEndToEndCreditCardCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	offer, err := h.svc.CreateOffer(ctx, "maya", "credit_card", &model.Offer{
		OfferType: "balance_transfer",
		Data:      model.Attributes{"interest_rate": 12.5},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OfferDraft, offer.Status)

	camp, err := h.svc.CreateCampaign(ctx, "maya", "credit_card", service.CampaignInput{
		Name:              "Premium push",
		SelectionCriteria: criteria.Criteria{"segment": "=premium", "credit_score": ">700"},
		StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		OfferID:           &offer.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, camp.Status)

	res, err := h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	require.NotNil(t, res.SideEffect.Pipeline)
	assert.Equal(t, 2, res.SideEffect.Pipeline.Added)

	rows, _, err := h.svc.ListCampaignCustomers(ctx, "rita", "credit_card", camp.ID, 1, 50, "")
	require.NoError(t, err)
	got := map[string]model.DeliveryStatus{}
	for _, r := range rows {
		got[r.CustomerID.String()] = r.DeliveryStatus
		assert.Equal(t, &offer.ID, r.OfferID)
	}
	assert.Equal(t, map[string]model.DeliveryStatus{
		customerID(1).String(): model.DeliveryPending,
		customerID(3).String(): model.DeliveryPending,
	}, got)

	res, err = h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignActive))
	require.NoError(t, err)
	require.NotNil(t, res.SideEffect.Activation)
	assert.Equal(t, "notified 1 of 1; 0 failed", res.SideEffect.Summary)

	withEmail, err := h.assoc.Get(ctx, "credit_card", camp.ID, customerID(1))
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySent, withEmail.DeliveryStatus)

	noEmail, err := h.assoc.Get(ctx, "credit_card", camp.ID, customerID(3))
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, noEmail.DeliveryStatus)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, 12.5, h.sender.sent[0].OfferAttributes["interest_rate"])
	assert.Equal(t, model.CampaignActive, h.campaigns.status(camp.ID))
}

func TestCreateCampaignValidatesCriteriaAtTheBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := service.CampaignInput{
		Name:      "x",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	in.SelectionCriteria = criteria.Criteria{}
	_, err := h.svc.CreateCampaign(ctx, "maya", "credit_card", in)
	var ve *appErrors.ValidationError
	assert.True(t, errors.As(err, &ve))

	in.SelectionCriteria = criteria.Criteria{"segment": "!"}
	_, err = h.svc.CreateCampaign(ctx, "maya", "credit_card", in)
	var ce *appErrors.CompileError
	assert.True(t, errors.As(err, &ce))

	in.SelectionCriteria = criteria.Criteria{"shoe_size": "=9"}
	_, err = h.svc.CreateCampaign(ctx, "maya", "credit_card", in)
	var se *appErrors.SchemaMismatchError
	assert.True(t, errors.As(err, &se))

	in.SelectionCriteria = criteria.Criteria{"segment": "=premium"}
	missing := int64(99)
	in.OfferID = &missing
	_, err = h.svc.CreateCampaign(ctx, "maya", "credit_card", in)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "offer_id", ve.Field)
}

func TestAuthorizationDeniedBeforePipelineRuns(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	for _, user := range []string{"maya", "rita", "stranger", ""} {
		_, err := h.svc.UpdateCampaign(context.Background(), user, "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
		var ad *appErrors.AuthorizationDeniedError
		require.True(t, errors.As(err, &ad), "user %q", user)
		assert.ElementsMatch(t, []string{"admin", "approver"}, ad.Required)
	}

	assert.Equal(t, model.CampaignDraft, h.campaigns.status(camp.ID))
	assert.Equal(t, 0, h.assoc.count(camp.ID, ""))
	assert.Equal(t, 0, h.campaigns.updates)
}

func TestAuthorizationIsPerTenant(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateTenant(context.Background(), "lena", "loan", "")
	require.NoError(t, err)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	_, err = h.svc.GetCampaign(context.Background(), "lena", "credit_card", camp.ID)
	var ad *appErrors.AuthorizationDeniedError
	assert.True(t, errors.As(err, &ad))

	// lena is admin of loan but the campaign lives in credit_card
	_, err = h.svc.GetCampaign(context.Background(), "lena", "loan", camp.ID)
	var nf *appErrors.ErrCampaignNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	_, err := h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignActive))
	var it *appErrors.InvalidTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, "draft", it.From)
	assert.Equal(t, "active", it.To)

	_, err = h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate("archived"))
	var ve *appErrors.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, model.CampaignDraft, h.campaigns.status(camp.ID))
}

func TestSameStatusIsNotATransition(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	res, err := h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignDraft))
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Nil(t, res.SideEffect)
}

func TestStatusStaysCommittedWhenResolutionFails(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})
	h.customers.err = errors.New("connection reset by peer")

	res, err := h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.Error(t, err)

	var sfx *appErrors.SideEffectError
	require.True(t, errors.As(err, &sfx))
	assert.Equal(t, "materialize", sfx.Stage)
	var re *appErrors.ResolutionError
	assert.True(t, errors.As(err, &re))

	require.NotNil(t, res)
	assert.Equal(t, model.CampaignApproved, res.Campaign.Status)
	assert.Equal(t, model.CampaignApproved, h.campaigns.status(camp.ID))
	assert.Equal(t, 0, h.assoc.count(camp.ID, ""))

	// a manual reprocess picks it up once the store is back
	h.customers.err = nil
	stage, err := h.svc.Reprocess(context.Background(), "omar", "credit_card", camp.ID, queue.JobMaterialize)
	require.NoError(t, err)
	assert.Equal(t, 3, stage.Pipeline.Added)
}

func TestFieldEditsOnlyWhileDraft(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})
	name := "Premium push v2"

	res, err := h.svc.UpdateCampaign(context.Background(), "maya", "credit_card", camp.ID, model.CampaignUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, res.Campaign.Name)
	assert.NotNil(t, res.Campaign.UpdatedAt)

	_, err = h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)

	_, err = h.svc.UpdateCampaign(context.Background(), "maya", "credit_card", camp.ID, model.CampaignUpdate{
		SelectionCriteria: criteria.Criteria{"segment": "=standard"},
	})
	var it *appErrors.InvalidTransitionError
	assert.True(t, errors.As(err, &it))
}

func TestReprocessRequiresMatchingStatus(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	_, err := h.svc.Reprocess(context.Background(), "omar", "credit_card", camp.ID, queue.JobNotify)
	var it *appErrors.InvalidTransitionError
	assert.True(t, errors.As(err, &it))
}

func TestRecordResponseIsForwardOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	camp := h.draft(t, criteria.Criteria{"segment": "=premium", "credit_score": ">700"})
	_, err := h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)

	// still pending: cannot be answered yet
	_, err = h.svc.RecordResponse(ctx, "omar", "credit_card", camp.ID, customerID(1), model.DeliveryAccepted)
	var it *appErrors.InvalidTransitionError
	require.True(t, errors.As(err, &it))

	_, err = h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignActive))
	require.NoError(t, err)

	row, err := h.svc.RecordResponse(ctx, "omar", "credit_card", camp.ID, customerID(1), model.DeliveryAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryAccepted, row.DeliveryStatus)
	assert.NotNil(t, row.RespondedAt)

	_, err = h.svc.RecordResponse(ctx, "omar", "credit_card", camp.ID, customerID(1), model.DeliveryDeclined)
	assert.True(t, errors.As(err, &it))

	_, err = h.svc.RecordResponse(ctx, "omar", "credit_card", camp.ID, customerID(1), model.DeliverySent)
	var ve *appErrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Publish(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                  { return nil }

func TestAsyncModePublishesJobAfterCommit(t *testing.T) {
	h := newHarness(t)
	q := &recordingQueue{}
	h.svc.Async = true
	h.svc.Queue = q
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	res, err := h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)
	assert.True(t, res.SideEffect.Queued)
	assert.Equal(t, []queue.Job{{Kind: queue.JobMaterialize, Tenant: "credit_card", CampaignID: camp.ID}}, q.jobs)
	assert.Equal(t, 0, h.assoc.count(camp.ID, ""))

	require.NoError(t, h.svc.RunJob(context.Background(), q.jobs[0]))
	assert.Equal(t, 3, h.assoc.count(camp.ID, model.DeliveryPending))
}

func TestRunJobDropsStaleAndPermanentFailures(t *testing.T) {
	h := newHarness(t)
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})

	// still draft: nothing to materialize
	require.NoError(t, h.svc.RunJob(context.Background(), queue.Job{Kind: queue.JobMaterialize, Tenant: "credit_card", CampaignID: camp.ID}))
	assert.Equal(t, 0, h.assoc.count(camp.ID, ""))

	require.NoError(t, h.svc.RunJob(context.Background(), queue.Job{Kind: queue.JobNotify, Tenant: "credit_card", CampaignID: 404}))

	h.customers.err = errors.New("timeout")
	h.svc.Async = true
	h.svc.Queue = &recordingQueue{}
	_, err := h.svc.UpdateCampaign(context.Background(), "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)

	// resolution failures are worth retrying
	err = h.svc.RunJob(context.Background(), queue.Job{Kind: queue.JobMaterialize, Tenant: "credit_card", CampaignID: camp.ID})
	var re *appErrors.ResolutionError
	assert.True(t, errors.As(err, &re))
}

func TestListCampaignsPaginates(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.draft(t, criteria.Criteria{"segment": "=premium"})
	}

	campaigns, pagination, err := h.svc.ListCampaigns(context.Background(), "rita", "credit_card", 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, int64(3), campaigns[0].ID)
	assert.Equal(t, map[string]int{"page": 2, "page_size": 2, "total_count": 5, "total_pages": 3}, pagination)

	_, pagination, err = h.svc.ListCampaigns(context.Background(), "rita", "credit_card", 0, 500, "draft")
	require.NoError(t, err)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 100, pagination["page_size"])

	_, _, err = h.svc.ListCampaigns(context.Background(), "rita", "credit_card", 1, 10, "bogus")
	var ve *appErrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

var _ query.Catalog = (*fakeCatalog)(nil)

// staleCampaigns hands out a snapshot, then lets a concurrent request win the
// status change before the caller writes.
type staleCampaigns struct {
	*fakeCampaigns
	winner model.CampaignStatus
}

func (s *staleCampaigns) GetByID(ctx context.Context, tenant string, id int64) (*model.Campaign, error) {
	c, err := s.fakeCampaigns.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.rows[id].Status = s.winner
	s.mu.Unlock()
	return c, nil
}

func TestConcurrentStatusChangeLosesAndSkipsSideEffect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	camp := h.draft(t, criteria.Criteria{"segment": "=premium"})
	_, err := h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignApproved))
	require.NoError(t, err)

	h.svc.CampaignRepo = &staleCampaigns{fakeCampaigns: h.campaigns, winner: model.CampaignActive}
	_, err = h.svc.UpdateCampaign(ctx, "omar", "credit_card", camp.ID, statusUpdate(model.CampaignActive))

	var it *appErrors.InvalidTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, "active", it.From)
	assert.Empty(t, h.sender.addresses())
	assert.Equal(t, 0, h.assoc.count(camp.ID, model.DeliverySent))
}
