package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/textutil"
	"github.com/partner-scorecard/api/internal/repositories"
)

const (
	maxPartnerFieldLength = 200
	maxSearchResults      = 200
)

var (
	// ErrPartnerNotFound indicates the partner does not exist.
	ErrPartnerNotFound = errors.New("partner: not found")
	// ErrPartnerInvalid indicates the supplied partner attributes failed validation.
	ErrPartnerInvalid = errors.New("partner: invalid input")
	// ErrPartnerConflict indicates a partner with the same id already exists.
	ErrPartnerConflict = errors.New("partner: conflict")
	// ErrPartnerForbidden indicates the caller lacks the capability for the operation.
	ErrPartnerForbidden = errors.New("partner: forbidden")
)

// PartnerServiceDeps bundles collaborators required to construct a partner service.
type PartnerServiceDeps struct {
	Partners repositories.PartnerRepository
	Clock    func() time.Time
	IDGen    func() string
}

type partnerService struct {
	partners repositories.PartnerRepository
	clock    func() time.Time
	newID    func() string
}

var _ PartnerService = (*partnerService)(nil)

// NewPartnerService wires the partner repository into a PartnerService.
func NewPartnerService(deps PartnerServiceDeps) (PartnerService, error) {
	if deps.Partners == nil {
		return nil, errors.New("partner service: partner repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &partnerService{
		partners: deps.Partners,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

func (s *partnerService) CreatePartner(ctx context.Context, cmd CreatePartnerCommand) (Partner, error) {
	if !cmd.Actor.Permissions().CanCreatePartners {
		return Partner{}, ErrPartnerForbidden
	}
	scope, ok := domain.ParsePartnerScope(cmd.Scope)
	if !ok {
		return Partner{}, fmt.Errorf("%w: scope must be domestic or overseas", ErrPartnerInvalid)
	}

	now := s.clock()
	partner := Partner{
		ID:        s.newID(),
		Scope:     scope,
		Country:   textutil.SingleLine(cmd.Country),
		Name:      textutil.SingleLine(cmd.Name),
		Org:       textutil.SingleLine(cmd.Org),
		Email:     normalizeOptionalEmail(cmd.Email),
		Phone:     textutil.SingleLine(cmd.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validatePartner(partner); err != nil {
		return Partner{}, err
	}

	if err := s.partners.Insert(ctx, partner); err != nil {
		return Partner{}, mapRepositoryError(err, nil, ErrPartnerConflict)
	}
	return partner, nil
}

func (s *partnerService) GetPartner(ctx context.Context, partnerID string) (Partner, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return Partner{}, ErrPartnerNotFound
	}
	partner, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return Partner{}, mapRepositoryError(err, ErrPartnerNotFound, nil)
	}
	return partner, nil
}

func (s *partnerService) UpdatePartner(ctx context.Context, cmd UpdatePartnerCommand) (Partner, error) {
	if !cmd.Actor.Permissions().CanEditPartners {
		return Partner{}, ErrPartnerForbidden
	}
	partner, err := s.GetPartner(ctx, cmd.PartnerID)
	if err != nil {
		return Partner{}, err
	}

	if cmd.Scope != nil {
		scope, ok := domain.ParsePartnerScope(*cmd.Scope)
		if !ok {
			return Partner{}, fmt.Errorf("%w: scope must be domestic or overseas", ErrPartnerInvalid)
		}
		partner.Scope = scope
	}
	if cmd.Country != nil {
		partner.Country = textutil.SingleLine(*cmd.Country)
	}
	if cmd.Name != nil {
		partner.Name = textutil.SingleLine(*cmd.Name)
	}
	if cmd.Org != nil {
		partner.Org = textutil.SingleLine(*cmd.Org)
	}
	if cmd.Email != nil {
		partner.Email = normalizeOptionalEmail(*cmd.Email)
	}
	if cmd.Phone != nil {
		partner.Phone = textutil.SingleLine(*cmd.Phone)
	}
	if err := validatePartner(partner); err != nil {
		return Partner{}, err
	}

	partner.UpdatedAt = s.clock()
	if err := s.partners.Update(ctx, partner); err != nil {
		return Partner{}, mapRepositoryError(err, ErrPartnerNotFound, ErrPartnerConflict)
	}
	return partner, nil
}

func (s *partnerService) ListPartners(ctx context.Context, filter PartnerListFilter) (domain.CursorPage[Partner], error) {
	page, err := s.partners.List(ctx, repositories.PartnerListFilter{
		Archived:   filter.Archived,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Partner]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}

// SearchPartners matches the query against name, org, country and email of active partners.
func (s *partnerService) SearchPartners(ctx context.Context, query string) ([]Partner, error) {
	all, err := s.partners.ListAll(ctx, false)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	query = strings.TrimSpace(query)
	out := make([]Partner, 0)
	for _, p := range all {
		if textutil.ContainsFold(query, p.Name, p.Org, p.Country, p.Email) {
			out = append(out, p)
			if len(out) == maxSearchResults {
				break
			}
		}
	}
	return out, nil
}

func (s *partnerService) ArchivePartner(ctx context.Context, cmd PartnerArchiveCommand) (Partner, error) {
	return s.setArchived(ctx, cmd, true)
}

func (s *partnerService) RestorePartner(ctx context.Context, cmd PartnerArchiveCommand) (Partner, error) {
	return s.setArchived(ctx, cmd, false)
}

func (s *partnerService) ListArchived(ctx context.Context) ([]Partner, error) {
	partners, err := s.partners.ListAll(ctx, true)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return partners, nil
}

// setArchived flips the archive flag. Repeating the current state is a no-op.
func (s *partnerService) setArchived(ctx context.Context, cmd PartnerArchiveCommand, archived bool) (Partner, error) {
	if !cmd.Actor.Permissions().CanDeletePartners {
		return Partner{}, ErrPartnerForbidden
	}
	partner, err := s.GetPartner(ctx, cmd.PartnerID)
	if err != nil {
		return Partner{}, err
	}
	if partner.Archived == archived {
		return partner, nil
	}
	partner.Archived = archived
	partner.UpdatedAt = s.clock()
	if err := s.partners.Update(ctx, partner); err != nil {
		return Partner{}, mapRepositoryError(err, ErrPartnerNotFound, ErrPartnerConflict)
	}
	return partner, nil
}

func validatePartner(p Partner) error {
	required := []struct {
		field string
		value string
	}{
		{"country", p.Country},
		{"name", p.Name},
		{"org", p.Org},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is required", ErrPartnerInvalid, r.field)
		}
	}
	for field, value := range map[string]string{
		"country": p.Country, "name": p.Name, "org": p.Org, "email": p.Email, "phone": p.Phone,
	} {
		if utf8.RuneCountInString(value) > maxPartnerFieldLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrPartnerInvalid, field, maxPartnerFieldLength)
		}
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: email is malformed", ErrPartnerInvalid)
	}
	return nil
}

func normalizeOptionalEmail(raw string) string {
	return strings.ToLower(textutil.SingleLine(raw))
}
