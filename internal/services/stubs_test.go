package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/repositories"
)

type repoErr struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoErr) Error() string       { return e.err.Error() }
func (e *repoErr) Unwrap() error       { return e.err }
func (e *repoErr) IsNotFound() bool    { return e.notFound }
func (e *repoErr) IsConflict() bool    { return e.conflict }
func (e *repoErr) IsUnavailable() bool { return e.unavailable }

func notFoundErr() error { return &repoErr{err: errors.New("not found"), notFound: true} }
func conflictErr() error { return &repoErr{err: errors.New("already exists"), conflict: true} }

type memoryPartnerRepo struct {
	mu      sync.Mutex
	store   map[string]domain.Partner
	listErr error
}

func newMemoryPartnerRepo(partners ...domain.Partner) *memoryPartnerRepo {
	repo := &memoryPartnerRepo{store: make(map[string]domain.Partner)}
	for _, p := range partners {
		repo.store[p.ID] = p
	}
	return repo
}

func (r *memoryPartnerRepo) Insert(_ context.Context, partner domain.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[partner.ID]; ok {
		return conflictErr()
	}
	r.store[partner.ID] = partner
	return nil
}

func (r *memoryPartnerRepo) Update(_ context.Context, partner domain.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[partner.ID]; !ok {
		return notFoundErr()
	}
	r.store[partner.ID] = partner
	return nil
}

func (r *memoryPartnerRepo) FindByID(_ context.Context, partnerID string) (domain.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store[partnerID]
	if !ok {
		return domain.Partner{}, notFoundErr()
	}
	return p, nil
}

func (r *memoryPartnerRepo) List(ctx context.Context, filter repositories.PartnerListFilter) (domain.CursorPage[domain.Partner], error) {
	items, err := r.ListAll(ctx, filter.Archived)
	if err != nil {
		return domain.CursorPage[domain.Partner]{}, err
	}
	return domain.CursorPage[domain.Partner]{Items: items}, nil
}

func (r *memoryPartnerRepo) ListAll(_ context.Context, archived bool) ([]domain.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.Partner, 0, len(r.store))
	for _, p := range r.store {
		if p.Archived == archived {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memoryEvaluationRepo struct {
	mu         sync.Mutex
	store      map[string]domain.Evaluation
	insertHook func(domain.Evaluation) error
}

func newMemoryEvaluationRepo(evaluations ...domain.Evaluation) *memoryEvaluationRepo {
	repo := &memoryEvaluationRepo{store: make(map[string]domain.Evaluation)}
	for _, e := range evaluations {
		repo.store[e.ID] = e
	}
	return repo
}

func (r *memoryEvaluationRepo) Insert(_ context.Context, evaluation domain.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertHook != nil {
		if err := r.insertHook(evaluation); err != nil {
			return err
		}
	}
	if _, ok := r.store[evaluation.ID]; ok {
		return conflictErr()
	}
	r.store[evaluation.ID] = evaluation
	return nil
}

func (r *memoryEvaluationRepo) FindByID(_ context.Context, evaluationID string) (domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.store[evaluationID]
	if !ok {
		return domain.Evaluation{}, notFoundErr()
	}
	return e, nil
}

func (r *memoryEvaluationRepo) ListByPartner(_ context.Context, partnerID string) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Evaluation
	for _, e := range r.store {
		if e.PartnerID == partnerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *memoryEvaluationRepo) ListAll(_ context.Context) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Evaluation, 0, len(r.store))
	for _, e := range r.store {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartnerID == out[j].PartnerID {
			return out[i].Version < out[j].Version
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	return out, nil
}

type memoryAccountRepo struct {
	mu        sync.Mutex
	store     map[string]domain.Account
	touched   map[string]time.Time
	deleted   []string
	insertErr error
}

func newMemoryAccountRepo(accounts ...domain.Account) *memoryAccountRepo {
	repo := &memoryAccountRepo{store: make(map[string]domain.Account), touched: make(map[string]time.Time)}
	for _, a := range accounts {
		repo.store[a.Email] = a
	}
	return repo
}

func (r *memoryAccountRepo) Insert(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.store[account.Email]; ok {
		return conflictErr()
	}
	r.store[account.Email] = account
	return nil
}

func (r *memoryAccountRepo) FindByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.store[email]
	if !ok {
		return domain.Account{}, notFoundErr()
	}
	return a, nil
}

func (r *memoryAccountRepo) List(_ context.Context, filter repositories.AccountListFilter) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, a := range r.store {
		if filter.Status == "" || a.Status == filter.Status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memoryAccountRepo) Mutate(_ context.Context, email string, mutate repositories.AccountMutation) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.store[email]
	if !ok {
		return domain.Account{}, notFoundErr()
	}
	if err := mutate(&a); err != nil {
		return domain.Account{}, err
	}
	r.store[email] = a
	return a, nil
}

func (r *memoryAccountRepo) TouchLogin(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[email]; !ok {
		return notFoundErr()
	}
	r.touched[email] = at
	return nil
}

func (r *memoryAccountRepo) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[email]; !ok {
		return notFoundErr()
	}
	delete(r.store, email)
	r.deleted = append(r.deleted, email)
	return nil
}

type memoryCriteriaRepo struct {
	mu    sync.Mutex
	store map[string]domain.Criterion
}

func newMemoryCriteriaRepo() *memoryCriteriaRepo {
	return &memoryCriteriaRepo{store: make(map[string]domain.Criterion)}
}

func (r *memoryCriteriaRepo) List(_ context.Context) ([]domain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Criterion, 0, len(r.store))
	for _, c := range r.store {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope == out[j].Scope {
			return out[i].Order < out[j].Order
		}
		return out[i].Scope < out[j].Scope
	})
	return out, nil
}

func (r *memoryCriteriaRepo) FindByID(_ context.Context, id string) (domain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store[id]
	if !ok {
		return domain.Criterion{}, notFoundErr()
	}
	return c, nil
}

func (r *memoryCriteriaRepo) Insert(_ context.Context, c domain.Criterion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[c.ID]; ok {
		return conflictErr()
	}
	r.store[c.ID] = c
	return nil
}

func (r *memoryCriteriaRepo) Update(_ context.Context, c domain.Criterion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[c.ID]; !ok {
		return notFoundErr()
	}
	r.store[c.ID] = c
	return nil
}

func (r *memoryCriteriaRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return notFoundErr()
	}
	delete(r.store, id)
	return nil
}

func (r *memoryCriteriaRepo) SeedIfEmpty(_ context.Context, criteria []domain.Criterion) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.store) > 0 {
		return 0, nil
	}
	for _, c := range criteria {
		r.store[c.ID] = c
	}
	return len(criteria), nil
}

// memoryCounterRepo mirrors the store semantics: max(current, floor)+1.
type memoryCounterRepo struct {
	mu     sync.Mutex
	values map[string]int64
	calls  []counterCall
	err    error
}

type counterCall struct {
	ID    string
	Floor int64
}

func newMemoryCounterRepo() *memoryCounterRepo {
	return &memoryCounterRepo{values: make(map[string]int64)}
}

func (r *memoryCounterRepo) Next(_ context.Context, counterID string, floor int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, counterCall{ID: counterID, Floor: floor})
	if r.err != nil {
		return 0, r.err
	}
	current := r.values[counterID]
	if floor > current {
		current = floor
	}
	current++
	r.values[counterID] = current
	return current, nil
}

type stubEventPublisher struct {
	mu        sync.Mutex
	saved     []EvaluationSavedEvent
	completed []BackupCompletedEvent
	err       error
}

func (p *stubEventPublisher) PublishEvaluationSaved(_ context.Context, event EvaluationSavedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, event)
	return "msg-1", p.err
}

func (p *stubEventPublisher) PublishBackupCompleted(_ context.Context, event BackupCompletedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return "msg-2", p.err
}

type stubRecorder struct {
	saved   []string
	scores  []float64
	backups []string
}

func (r *stubRecorder) RecordSaved(_ context.Context, scope, rating string, score float64) {
	r.saved = append(r.saved, scope+"/"+rating)
	r.scores = append(r.scores, score)
}

func (r *stubRecorder) RecordBackup(_ context.Context, trigger string) {
	r.backups = append(r.backups, trigger)
}

var (
	admin   = domain.Caller{Email: "admin@example.com", Role: domain.RoleAdmin}
	manager = domain.Caller{Email: "manager@example.com", Role: domain.RoleManager}
	viewer  = domain.Caller{Email: "viewer@example.com", Role: domain.RoleUser}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func repeatAnswer(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

var (
	_ repositories.PartnerRepository    = (*memoryPartnerRepo)(nil)
	_ repositories.EvaluationRepository = (*memoryEvaluationRepo)(nil)
	_ repositories.AccountRepository    = (*memoryAccountRepo)(nil)
	_ repositories.CriteriaRepository   = (*memoryCriteriaRepo)(nil)
	_ repositories.CounterRepository    = (*memoryCounterRepo)(nil)
	_ EventPublisher                    = (*stubEventPublisher)(nil)
	_ EvaluationRecorder                = (*stubRecorder)(nil)
)
