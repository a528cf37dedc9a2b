package postgres

import (
	"context"
	"fmt"

	"github.com/skills-gamification/internal/domain"
)

// Drill relevance markers as stored by the drill library editors
const (
	relevanceFocus      = "F"
	relevanceSupporting = "S"
)

// DrillSource reads the academy and team drill libraries
type DrillSource struct {
	repo *Repository
}

// NewDrillSource creates a drill source over the repository's pool
func NewDrillSource(repo *Repository) *DrillSource {
	return &DrillSource{repo: repo}
}

// FetchDrills loads the drills of one library whose ids are in ids
func (s *DrillSource) FetchDrills(ctx context.Context, library domain.WorkoutType, ids []int64) ([]domain.Drill, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT id, title, difficulty_score, category, attack_relevance, defense_relevance, midfield_relevance
		FROM drills
		WHERE library = $1 AND id = ANY($2)
	`, string(library), ids)
	if err != nil {
		return nil, fmt.Errorf("fetching drills: %w", err)
	}
	defer rows.Close()

	var drills []domain.Drill
	for rows.Next() {
		d := domain.Drill{Source: library}
		var attack, defense, midfield *string
		if err := rows.Scan(&d.ID, &d.Title, &d.DifficultyScore, &d.Category, &attack, &defense, &midfield); err != nil {
			return nil, fmt.Errorf("scanning drill: %w", err)
		}
		d.CategoryRelevance = relevance(map[string]*string{
			"attack":   attack,
			"defense":  defense,
			"midfield": midfield,
		})
		drills = append(drills, d)
	}
	return drills, rows.Err()
}

func relevance(markers map[string]*string) map[string]float64 {
	var out map[string]float64
	for category, marker := range markers {
		if marker == nil {
			continue
		}
		var weight float64
		switch *marker {
		case relevanceFocus:
			weight = 1.0
		case relevanceSupporting:
			weight = 0.7
		default:
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[category] = weight
	}
	return out
}
