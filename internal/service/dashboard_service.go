package service

import (
	"context"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

type Dashboard struct {
	repository.Counters
	Documents map[models.DocumentState]int `json:"documents"`
}

type DashboardService struct {
	counters   DashboardStore
	compliance *ComplianceService
}

func NewDashboardService(counters DashboardStore, compliance *ComplianceService) *DashboardService {
	return &DashboardService{counters: counters, compliance: compliance}
}

// Get returns the counters of the caller's tenant.
func (s *DashboardService) Get(ctx context.Context, scope models.Scope) (*Dashboard, error) {
	c, err := s.counters.Counters(ctx, scope)
	if err != nil {
		return nil, err
	}
	states, err := s.compliance.StateCounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := &Dashboard{Counters: *c, Documents: map[models.DocumentState]int{}}
	for _, st := range models.DocumentStates {
		out.Documents[st] = 0
	}
	for _, sc := range states {
		out.Documents[sc.State] = sc.Count
	}
	return out, nil
}
