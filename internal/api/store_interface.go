package api

import (
	"context"

	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
)

// Store is everything the HTTP layer persists. The memory store and
// db.SQLiteStore both implement it.
type Store interface {
	services.SurveyStore
	services.ResponseStore
	services.AuthStore

	ListAudit(ctx context.Context, actor string) ([]models.AuditEntry, error)
}

var _ Store = (*memoryStore)(nil)
