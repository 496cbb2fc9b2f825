package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/soaringjerry/Surveyor/internal/api"
	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

// SeedSnapshot is the JSON layout of SURVEYOR_SEED_PATH: full survey trees
// plus the tenants that own them and any recorded responses.
type SeedSnapshot struct {
	Tenants   []*models.Tenant   `json:"tenants"`
	Surveys   []*models.Survey   `json:"surveys"`
	Responses []*models.Response `json:"responses"`
}

func loadSeed(path string) (*SeedSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap SeedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &snap, nil
}

// SeedIfNeeded imports the snapshot at path into dst. Surveys that already
// exist are left alone, so restarting with the same seed is harmless.
func SeedIfNeeded(ctx context.Context, path string, dst api.Store) error {
	if path == "" {
		return nil
	}
	snap, err := loadSeed(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("seed file %s not found, skipping", path)
			return nil
		}
		return err
	}
	imported, err := copySnapshotToStore(ctx, snap, dst)
	if err != nil {
		return fmt.Errorf("copy seed: %w", err)
	}
	if imported > 0 {
		log.Printf("Seeded %d survey(s) from %s", imported, path)
	}
	return nil
}

func copySnapshotToStore(ctx context.Context, snap *SeedSnapshot, dst api.Store) (int, error) {
	for _, t := range snap.Tenants {
		if t == nil {
			continue
		}
		if err := dst.AddTenant(ctx, t); err != nil {
			return 0, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	fresh := map[string]bool{}
	for _, sv := range snap.Surveys {
		if sv == nil || sv.ID == "" {
			continue
		}
		existing, err := dst.GetSurvey(ctx, sv.ID)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			continue
		}
		for _, issue := range engine.CheckDefinition(sv) {
			log.Printf("seed: survey %s: %v", sv.ID, issue)
		}
		if err := insertTree(ctx, sv, dst); err != nil {
			return 0, fmt.Errorf("survey %s: %w", sv.ID, err)
		}
		fresh[sv.ID] = true
	}
	for _, r := range snap.Responses {
		if r == nil || !fresh[r.SurveyID] {
			continue
		}
		if err := dst.InsertResponse(ctx, r); err != nil {
			return 0, fmt.Errorf("response %s: %w", r.ID, err)
		}
	}
	return len(fresh), nil
}

func insertTree(ctx context.Context, sv *models.Survey, dst api.Store) error {
	header := *sv
	header.Sections = nil
	if err := dst.InsertSurvey(ctx, &header); err != nil {
		return err
	}
	for _, sec := range sv.Sections {
		if sec == nil {
			continue
		}
		sec.SurveyID = sv.ID
		if err := dst.InsertSection(ctx, sec); err != nil {
			return err
		}
		for _, q := range sec.Questions {
			if q == nil {
				continue
			}
			q.SectionID = sec.ID
			if err := dst.InsertQuestion(ctx, q); err != nil {
				return err
			}
		}
	}
	return nil
}
