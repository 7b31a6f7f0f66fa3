package service

import (
	"context"
	"fmt"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
)

type AuditQuery struct {
	UserID   *uuid.UUID
	Action   string
	EntityID string
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, actor Actor, q AuditQuery, p pagination.Params) (pagination.Page[model.AuditLog], error)
}

type auditService struct {
	repo  repository.AuditRepository
	guard *Guard
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository, guard *Guard) AuditService {
	return &auditService{repo: repo, guard: guard}
}

// GetAuditLogs returns entries newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, actor Actor, q AuditQuery, p pagination.Params) (pagination.Page[model.AuditLog], error) {
	if err := s.guard.Require(ctx, actor, permission.AuditRead); err != nil {
		return pagination.Page[model.AuditLog]{}, err
	}
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		UserID:   q.UserID,
		Action:   q.Action,
		EntityID: q.EntityID,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.AuditLog]{}, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return pagination.NewPage(logs, total, p), nil
}
