package drills

import (
	"context"
	"sync"

	"github.com/skills-gamification/internal/domain"
)

// MemorySource is an in-memory drill library for local development and tests
type MemorySource struct {
	mu     sync.RWMutex
	drills map[domain.WorkoutType]map[int64]domain.Drill
	calls  int
}

// NewMemorySource returns an empty source
func NewMemorySource() *MemorySource {
	return &MemorySource{drills: make(map[domain.WorkoutType]map[int64]domain.Drill)}
}

// Add registers drills in a library
func (s *MemorySource) Add(library domain.WorkoutType, drills ...domain.Drill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lib, ok := s.drills[library]
	if !ok {
		lib = make(map[int64]domain.Drill)
		s.drills[library] = lib
	}
	for _, d := range drills {
		lib[d.ID] = d
	}
}

func (s *MemorySource) FetchDrills(ctx context.Context, library domain.WorkoutType, ids []int64) ([]domain.Drill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	var out []domain.Drill
	for _, id := range ids {
		if d, ok := s.drills[library][id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Calls reports how many fetches reached the source
func (s *MemorySource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// DefaultDrills is a small academy and team library for local runs
func DefaultDrills() *MemorySource {
	s := NewMemorySource()
	s.Add(domain.WorkoutSkillsAcademy,
		domain.Drill{ID: 1, Title: "Wall Ball Basics", DifficultyScore: 1, Category: "wall_ball"},
		domain.Drill{ID: 2, Title: "Split Dodge", DifficultyScore: 2, Category: "attack", CategoryRelevance: map[string]float64{"attack": 1.0, "midfield": 0.7}},
		domain.Drill{ID: 3, Title: "Approach and Check", DifficultyScore: 3, Category: "defense"},
		domain.Drill{ID: 4, Title: "Transition Ride", DifficultyScore: 4, Category: "midfield", CategoryRelevance: map[string]float64{"midfield": 1.0, "defense": 0.7}},
		domain.Drill{ID: 5, Title: "Crease Finishing", DifficultyScore: 5, Category: "attack"},
		domain.Drill{ID: 6, Title: "Outlet Passing", DifficultyScore: 3, Category: "goalie"},
	)
	s.Add(domain.WorkoutTeamPractice,
		domain.Drill{ID: 101, Title: "3v2 Fast Break", DifficultyScore: 3, Category: "midfield"},
		domain.Drill{ID: 102, Title: "Man Down Rotation", DifficultyScore: 4, Category: "defense"},
		domain.Drill{ID: 103, Title: "Ground Ball Battles", DifficultyScore: 2, Category: "midfield"},
	)
	return s
}
