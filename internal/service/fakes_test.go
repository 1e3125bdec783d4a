package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/notify"
	"github.com/unclebandit/offerhub/internal/query"
)

// ---- catalog ----

type fakeCatalog struct{ err error }

func (f *fakeCatalog) TableColumns(ctx context.Context, table string) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	if table != model.CustomerEntity.Table {
		return map[string]bool{}, nil
	}
	cols := map[string]bool{"id": true}
	for c := range model.CustomerEntity.Columns {
		cols[c] = true
	}
	return cols, nil
}

// ---- customers ----

type fakeCustomer struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Fields map[string]string
}

// fakeCustomers evaluates the compiled predicates carried by the query.
type fakeCustomers struct {
	rows []fakeCustomer
	err  error
}

func (f *fakeCustomers) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	for _, r := range f.rows {
		if r.ID == id {
			c := &model.Customer{ID: r.ID, FullName: r.Name}
			if r.Email != "" {
				e := r.Email
				c.Email = &e
			}
			return c, nil
		}
	}
	return nil, appErrors.NewNotFound("customer", id.String())
}

func (f *fakeCustomers) MatchIDs(ctx context.Context, q *query.Query) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []uuid.UUID
	for _, r := range f.rows {
		if matchesAll(r.Fields, q.Predicates) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (f *fakeCustomers) find(id uuid.UUID) (fakeCustomer, bool) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, true
		}
	}
	return fakeCustomer{}, false
}

func matchesAll(fields map[string]string, preds []criteria.Predicate) bool {
	for _, p := range preds {
		v := fields[p.Field]
		switch p.Op {
		case criteria.OpEquals:
			if !strings.EqualFold(v, p.Operand().Text) {
				return false
			}
		case criteria.OpNotEquals:
			if strings.EqualFold(v, p.Operand().Text) {
				return false
			}
		case criteria.OpIn:
			found := false
			for _, o := range p.Operands {
				if strings.EqualFold(v, o.Text) {
					found = true
				}
			}
			if !found {
				return false
			}
		case criteria.OpGreaterThan, criteria.OpLessThan:
			have, err := decimal.NewFromString(v)
			if err != nil {
				return false
			}
			cmp := have.Cmp(p.Operand().Number)
			if (p.Op == criteria.OpGreaterThan && cmp <= 0) || (p.Op == criteria.OpLessThan && cmp >= 0) {
				return false
			}
		}
	}
	return true
}

// ---- campaign customers ----

type assocKey struct {
	campaign int64
	customer uuid.UUID
}

type fakeAssociations struct {
	mu          sync.Mutex
	rows        map[assocKey]*model.CampaignCustomer
	customers   *fakeCustomers
	insertErr   error
	markSentErr error
	commits     int
	locks       map[int64]chan struct{}
}

func newFakeAssociations(customers *fakeCustomers) *fakeAssociations {
	return &fakeAssociations{rows: map[assocKey]*model.CampaignCustomer{}, customers: customers}
}

func (f *fakeAssociations) InsertPending(ctx context.Context, tenant string, campaignID int64, offerID *int64, ids []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	if len(ids) == 0 {
		return 0, nil
	}
	added := 0
	for _, id := range ids {
		k := assocKey{campaignID, id}
		if _, ok := f.rows[k]; ok {
			continue
		}
		f.rows[k] = &model.CampaignCustomer{
			CampaignID: campaignID, CustomerID: id, OfferID: offerID,
			TenantName: tenant, DeliveryStatus: model.DeliveryPending,
		}
		added++
	}
	f.commits++
	return added, nil
}

func (f *fakeAssociations) ListDeliverable(ctx context.Context, tenant string, campaignID int64) ([]model.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Recipient
	for _, r := range f.sorted() {
		if r.TenantName != tenant || r.CampaignID != campaignID || r.DeliveryStatus != model.DeliveryPending {
			continue
		}
		c, ok := f.customers.find(r.CustomerID)
		if !ok || c.Email == "" {
			continue
		}
		out = append(out, model.Recipient{CustomerID: c.ID, Email: c.Email, FullName: c.Name})
	}
	return out, nil
}

func (f *fakeAssociations) MarkSent(ctx context.Context, tenant string, campaignID int64, ids []uuid.UUID, sentAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markSentErr != nil {
		return 0, f.markSentErr
	}
	n := 0
	for _, id := range ids {
		r, ok := f.rows[assocKey{campaignID, id}]
		if ok && r.TenantName == tenant && r.DeliveryStatus == model.DeliveryPending {
			r.DeliveryStatus = model.DeliverySent
			at := sentAt
			r.SentAt = &at
			n++
		}
	}
	f.commits++
	return n, nil
}

func (f *fakeAssociations) List(ctx context.Context, tenant string, campaignID int64, offset, limit int, status string) ([]model.CampaignCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.CampaignCustomer{}
	for _, r := range f.sorted() {
		if r.TenantName == tenant && r.CampaignID == campaignID && (status == "" || string(r.DeliveryStatus) == status) {
			out = append(out, *r)
		}
	}
	if offset >= len(out) {
		return []model.CampaignCustomer{}, nil
	}
	return out[offset:min(len(out), offset+limit)], nil
}

func (f *fakeAssociations) Get(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID) (*model.CampaignCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[assocKey{campaignID, customerID}]
	if !ok || r.TenantName != tenant {
		return nil, appErrors.NewNotFound("campaign customer", customerID.String())
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAssociations) RecordResponse(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID, status model.DeliveryStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[assocKey{campaignID, customerID}]
	if !ok || r.TenantName != tenant || r.DeliveryStatus != model.DeliverySent {
		return appErrors.NewInvalidTransition("delivery status", "not sent", string(status))
	}
	r.DeliveryStatus = status
	r.RespondedAt = &at
	return nil
}

func (f *fakeAssociations) LockCampaign(ctx context.Context, campaignID int64) (func(), error) {
	f.mu.Lock()
	if f.locks == nil {
		f.locks = map[int64]chan struct{}{}
	}
	l, ok := f.locks[campaignID]
	if !ok {
		l = make(chan struct{}, 1)
		f.locks[campaignID] = l
	}
	f.mu.Unlock()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeAssociations) count(campaignID int64, status model.DeliveryStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.CampaignID == campaignID && (status == "" || r.DeliveryStatus == status) {
			n++
		}
	}
	return n
}

func (f *fakeAssociations) sorted() []*model.CampaignCustomer {
	out := make([]*model.CampaignCustomer, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID.String() < out[j].CustomerID.String() })
	return out
}

// ---- campaigns ----

type fakeCampaigns struct {
	mu        sync.Mutex
	rows      map[int64]*model.Campaign
	nextID    int64
	updateErr error
	updates   int
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{rows: map[int64]*model.Campaign{}}
}

func (f *fakeCampaigns) Create(ctx context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	cp := *c
	f.rows[c.ID] = &cp
	return nil
}

func (f *fakeCampaigns) GetByID(ctx context.Context, tenant string, id int64) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.TenantName != tenant {
		return nil, appErrors.NewCampaignNotFound(tenant, id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) ListCampaigns(ctx context.Context, tenant string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Campaign
	for id := int64(1); id <= f.nextID; id++ {
		c, ok := f.rows[id]
		if ok && c.TenantName == tenant && (status == "" || string(c.Status) == status) {
			cp := *c
			all = append(all, &cp)
		}
	}
	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	return all[offset:min(len(all), offset+limit)], len(all), nil
}

func (f *fakeCampaigns) Update(ctx context.Context, c *model.Campaign, from model.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cur, ok := f.rows[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.TenantName, c.ID)
	}
	if cur.Status != from {
		return appErrors.NewInvalidTransition("campaign", string(cur.Status), string(c.Status))
	}
	cp := *c
	f.rows[c.ID] = &cp
	f.updates++
	return nil
}

func (f *fakeCampaigns) GetCampaignStats(ctx context.Context, tenant string, campaignID int64) (map[string]int, error) {
	return map[string]int{"total": 0}, nil
}

func (f *fakeCampaigns) status(id int64) model.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

// ---- offers and tenants ----

type fakeOffers struct {
	rows map[int64]*model.Offer
}

func (f *fakeOffers) Create(ctx context.Context, o *model.Offer) error {
	o.ID = int64(len(f.rows) + 1)
	f.rows[o.ID] = o
	return nil
}

func (f *fakeOffers) GetByID(ctx context.Context, tenant string, id int64) (*model.Offer, error) {
	o, ok := f.rows[id]
	if !ok || o.TenantName != tenant {
		return nil, appErrors.NewNotFound("offer", strconv.FormatInt(id, 10))
	}
	return o, nil
}

type fakeTenants struct {
	tenants map[string]*model.Tenant
	roles   map[string]model.RoleSet // username/tenant
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{tenants: map[string]*model.Tenant{}, roles: map[string]model.RoleSet{}}
}

func (f *fakeTenants) Create(ctx context.Context, t *model.Tenant) error {
	if _, ok := f.tenants[t.Name]; ok {
		return appErrors.NewValidation("name", "tenant already exists")
	}
	f.tenants[t.Name] = t
	return nil
}

func (f *fakeTenants) Get(ctx context.Context, name string) (*model.Tenant, error) {
	t, ok := f.tenants[name]
	if !ok {
		return nil, appErrors.NewNotFound("tenant", name)
	}
	return t, nil
}

func (f *fakeTenants) RolesFor(ctx context.Context, username, tenant string) (model.RoleSet, error) {
	if set, ok := f.roles[username+"/"+tenant]; ok {
		return set, nil
	}
	return model.RoleSet{}, nil
}

func (f *fakeTenants) AssignRole(ctx context.Context, username, tenant string, role model.Role) error {
	k := username + "/" + tenant
	if f.roles[k] == nil {
		f.roles[k] = model.RoleSet{}
	}
	f.roles[k][role] = true
	return nil
}

// ---- sender ----

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]error
	sent []notify.Notification

	// when gate is set, Send reports on entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, n notify.Notification) error {
	if f.gate != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[n.RecipientAddress]; ok {
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.RecipientAddress
	}
	sort.Strings(out)
	return out
}

var errSMTPDown = errors.New("smtp: 451 temporary failure")

func customerID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}
