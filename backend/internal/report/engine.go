// Package report joins filtered students with their achievements and groups
// the survivors by category.
package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// Joined is a student together with its surviving achievements
type Joined struct {
	Student shared.Student
	Groups  Grouped
}

// Selection picks which achievements of a single student are reported. The
// zero value reports all of them.
type Selection struct {
	// Params filters by toggled categories and by the date range.
	Params *filter.Params
	// Categories restricts the report to an explicit category list.
	Categories []shared.Category
}

// Engine runs the join over the record store
type Engine struct {
	students     store.StudentStore
	achievements store.AchievementStore
	concurrency  int
	logger       zerolog.Logger

	// Now anchors open-ended achievements; replaced in tests.
	Now func() time.Time
}

// NewEngine creates a join engine fetching at most concurrency students'
// achievements at once.
func NewEngine(students store.StudentStore, achievements store.AchievementStore, concurrency int, logger zerolog.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		students:     students,
		achievements: achievements,
		concurrency:  concurrency,
		logger:       logger,
		Now:          time.Now,
	}
}

// Run executes the whole listing pipeline. The result keeps the store's
// student order.
func (e *Engine) Run(ctx context.Context, p filter.Params) ([]Joined, error) {
	// 1. Search pre-pass over achievements
	var owners []string
	if p.Search != "" {
		var err error
		if owners, err = e.achievements.OwnersMatching(ctx, p.Search); err != nil {
			return nil, err
		}
	}

	// 2. Student-level predicate
	students, err := e.students.Find(ctx, p.StudentQuery(owners))
	if err != nil {
		return nil, err
	}

	// 3. Label-based date filter, only without a category filter
	if p.Range != nil && !p.CategoryFilterActive() {
		students = e.byYearOfStudy(students, *p.Range)
	}

	// 4. Per-student fetch, re-assembled by index
	results := make([]*Joined, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	now := e.Now()
	for i := range students {
		g.Go(func() error {
			all, err := e.achievements.FindByStudent(gctx, students[i].ID, false)
			if err != nil {
				return err
			}

			kept := all
			if p.CategoryFilterActive() {
				kept = keep(all, p.HasCategory, p.Range, now)
				if len(kept) == 0 {
					return nil
				}
			}

			results[i] = &Joined{Student: students[i], Groups: GroupByCategory(kept)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	joined := make([]Joined, 0, len(results))
	for _, r := range results {
		if r != nil {
			joined = append(joined, *r)
		}
	}
	return joined, nil
}

// One joins a single student. Students are never dropped here; an empty
// selection yields empty groups.
func (e *Engine) One(ctx context.Context, id string, sel Selection) (*Joined, error) {
	student, err := e.students.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	all, err := e.achievements.FindByStudent(ctx, id, false)
	if err != nil {
		return nil, err
	}

	kept := all
	switch {
	case sel.Categories != nil:
		selected := map[shared.Category]bool{}
		for _, c := range sel.Categories {
			selected[c] = true
		}
		kept = keep(all, func(c shared.Category) bool { return selected[c] }, nil, time.Time{})
	case sel.Params != nil:
		p := sel.Params
		include := func(shared.Category) bool { return true }
		if p.CategoryFilterActive() {
			include = p.HasCategory
		}
		kept = keep(all, include, p.Range, e.Now())
	}

	return &Joined{Student: *student, Groups: GroupByCategory(kept)}, nil
}

func (e *Engine) byYearOfStudy(students []shared.Student, r filter.DateRange) []shared.Student {
	kept := students[:0:0]
	for _, s := range students {
		start, end, ok := filter.ParseYearOfStudy(s.YearOfStudy)
		if !ok {
			e.logger.Debug().Str("studentId", s.ID).Str("yearOfStudy", s.YearOfStudy).Msg("unparseable year of study, excluded from date filter")
			continue
		}
		if r.Matches(start, end) {
			kept = append(kept, s)
		}
	}
	return kept
}

// keep applies the category predicate and, when r is set, the overlap test
// on the achievement's own interval. Ongoing achievements end at now.
func keep(achievements []shared.Achievement, include func(shared.Category) bool, r *filter.DateRange, now time.Time) []shared.Achievement {
	kept := []shared.Achievement{}
	for _, a := range achievements {
		if !include(a.Category) {
			continue
		}
		if r != nil {
			end := now
			if a.ToDate != nil {
				end = *a.ToDate
			}
			if end.Before(a.FromDate) {
				end = a.FromDate
			}
			if !r.Matches(a.FromDate, end) {
				continue
			}
		}
		kept = append(kept, a)
	}
	return kept
}
