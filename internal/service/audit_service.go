package service

import (
	"context"
	"encoding/json"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID         uint   `json:"id"`
	UserID     *uint  `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditEntry describes one access-control change. ActorID 0 means the system.
type AuditEntry struct {
	ActorID    uint
	Action     string
	EntityType string
	EntityID   uint
	EntityName string
	Details    interface{}
}

type AuditService interface {
	Record(ctx context.Context, entry AuditEntry)
	GetAuditLogs(ctx context.Context, f repository.AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
	log  *zap.Logger
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository, log *zap.Logger) AuditService {
	return &auditService{repo: repo, log: log}
}

// Record writes the entry. Failures are logged and never fail the caller,
// so call it after the change has committed.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) {
	details := "{}"
	if entry.Details != nil {
		if b, err := json.Marshal(entry.Details); err == nil {
			details = string(b)
		}
	}

	row := &model.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		EntityName: entry.EntityName,
		Details:    details,
	}
	if entry.ActorID != 0 {
		actor := entry.ActorID
		row.UserID = &actor
	}

	if err := s.repo.Log(context.WithoutCancel(ctx), row); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", entry.Action),
			zap.Uint("entity_id", entry.EntityID),
			zap.Error(err))
	}
}

// GetAuditLogs retrieves paginated records with users preloaded
func (s *auditService) GetAuditLogs(ctx context.Context, f repository.AuditFilter) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		if l.User != nil {
			username = l.User.Username
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID,
			UserID:     l.UserID,
			Username:   username,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
