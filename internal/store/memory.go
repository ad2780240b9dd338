package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/startup-intake/internal/model"
)

// MemoryStore is an in-memory Store for tests and local dry runs. It honors
// the same duplicate-surfacing contract as the database backends.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*model.StartupRecord
	byDomain map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*model.StartupRecord),
		byDomain: make(map[string]string),
	}
}

func (s *MemoryStore) FindByCanonicalDomain(_ context.Context, domain string) (*model.StartupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDomain[strings.ToLower(domain)]
	if !ok {
		return nil, nil
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *MemoryStore) FindCandidatesByNameSubstring(_ context.Context, name string, limit int) ([]model.StartupRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StartupRecord
	for _, rec := range s.byID {
		if strings.Contains(strings.ToLower(rec.CompanyName), needle) {
			out = append(out, *cloneRecord(rec))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec *model.StartupRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Uniqueness applies only to records that have a domain, matching the
	// database backends' nullable-unique column.
	domain := strings.ToLower(rec.CanonicalDomain)
	if domain != "" {
		if _, exists := s.byDomain[domain]; exists {
			return "", ErrDuplicateDomain
		}
	}

	stored := cloneRecord(rec)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.byID[stored.ID] = stored
	if domain != "" {
		s.byDomain[domain] = stored.ID
	}
	return stored.ID, nil
}

func (s *MemoryStore) AppendEvidence(_ context.Context, id string, delta model.EvidenceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return errNotFound(id)
	}
	applyDelta(rec, delta)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func cloneRecord(rec *model.StartupRecord) *model.StartupRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Aliases = append([]string(nil), rec.Aliases...)
	out.CategoryTags = append([]string(nil), rec.CategoryTags...)
	out.Evidence = append([]model.EvidenceItem(nil), rec.Evidence...)
	out.CrawlHistory = append([]model.CrawlEvent(nil), rec.CrawlHistory...)
	out.Extracted = model.ExtractedData{
		TractionSignals:  append([]model.Signal(nil), rec.Extracted.TractionSignals...),
		TeamSignals:      append([]model.Signal(nil), rec.Extracted.TeamSignals...),
		MarketSignals:    append([]model.Signal(nil), rec.Extracted.MarketSignals...),
		MoatSignals:      append([]model.Signal(nil), rec.Extracted.MoatSignals...),
		FundingMentions:  append([]model.FundingMention(nil), rec.Extracted.FundingMentions...),
		InvestorMentions: append([]model.InvestorMention(nil), rec.Extracted.InvestorMentions...),
		Accelerators:     append([]model.Accelerator(nil), rec.Extracted.Accelerators...),
	}
	return &out
}
