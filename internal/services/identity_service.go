package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/presencesync/agent/internal/models"
	"github.com/presencesync/agent/internal/repository"
)

// IdentityService provides the stable per-installation device identifier.
// The id is generated exactly once, persisted before it is ever returned,
// and never regenerated while the persisted value exists.
type IdentityService struct {
	repo repository.DeviceIdentityRepo

	mu     sync.Mutex
	cached string
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(repo repository.DeviceIdentityRepo) *IdentityService {
	return &IdentityService{repo: repo}
}

// DeviceID returns the stable device identifier, generating and
// persisting one on first use.
func (s *IdentityService) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	existing, err := s.repo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}
	if existing != "" {
		s.cached = existing
		return existing, nil
	}

	generated := "dev-" + models.NewLocalID()
	if err := s.repo.Save(ctx, generated); err != nil {
		return "", fmt.Errorf("failed to persist device identity: %w", err)
	}

	// Re-read in case a concurrent first call won the insert
	persisted, err := s.repo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}
	if persisted == "" {
		persisted = generated
	}

	s.cached = persisted
	return persisted, nil
}
