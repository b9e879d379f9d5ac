package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	t      *testing.T
	store  *store.Store
	engine *Engine
	seq    int
}

func newFixture(t *testing.T) *fixture {
	st := store.NewMemoryStore()
	engine := NewEngine(st.Students, st.Achievements, 4, zerolog.Nop())
	engine.Now = func() time.Time { return at(2024, time.June) }
	return &fixture{t: t, store: st, engine: engine}
}

func (f *fixture) student(id, name, yearOfStudy string) {
	f.seq++
	err := f.store.Students.Insert(context.Background(), &shared.Student{
		ID:          id,
		Name:        name,
		Email:       id + "@college.edu",
		RollNumber:  "R" + id,
		YearOfStudy: yearOfStudy,
		Batch:       "N",
		CreatedAt:   base.Add(time.Duration(f.seq) * time.Minute),
	})
	require.NoError(f.t, err)
}

func (f *fixture) achievement(studentID string, c shared.Category, title string, from time.Time, to *time.Time) {
	f.seq++
	err := f.store.Achievements.Insert(context.Background(), &shared.Achievement{
		ID:               fmt.Sprintf("a%d", f.seq),
		StudentID:        studentID,
		Category:         c,
		Title:            title,
		Description:      "desc",
		ShortDescription: "short",
		FromDate:         from,
		ToDate:           to,
		CreatedAt:        base.Add(time.Duration(f.seq) * time.Minute),
	})
	require.NoError(f.t, err)
}

func params(t *testing.T, q url.Values) filter.Params {
	p, err := filter.ParseParams(q)
	require.NoError(t, err)
	return p
}

func ids(joined []Joined) []string {
	out := []string{}
	for _, j := range joined {
		out = append(out, j.Student.ID)
	}
	return out
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()
	end := at(2023, time.March)

	f := newFixture(t)
	f.student("s1", "Asha", "2021-2025")
	f.student("s2", "Bala", "2019-2021")
	f.student("s3", "Chitra", "legacy label")
	f.student("s4", "Deepak", "2022-07 - 2026-06")

	f.achievement("s1", shared.CategoryCourse, "Go Programming", at(2022, time.January), &end)
	f.achievement("s1", shared.CategoryInternships, "Backend Intern", at(2023, time.January), &end)
	f.achievement("s1", shared.CategoryCourse, "Databases", at(2022, time.May), &end)
	f.achievement("s2", shared.CategoryPlacement, "Offer", at(2020, time.May), nil)
	f.achievement("s3", shared.CategoryInternships, "Summer Intern at Kappa", at(2021, time.May), &end)

	t.Run("No Filters Keeps Everyone In Order", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, filter.Params{})
		require.NoError(t, err)
		assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(joined))
		assert.Empty(t, joined[3].Groups)
	})

	t.Run("Groups In First Seen Order", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, filter.Params{})
		require.NoError(t, err)
		groups := joined[0].Groups
		require.Len(t, groups, 2)
		assert.Equal(t, shared.CategoryCourse, groups[0].Category)
		assert.Equal(t, shared.CategoryInternships, groups[1].Category)
		require.Len(t, groups[0].Achievements, 2)
		assert.Equal(t, "Go Programming", groups[0].Achievements[0].Title)
		assert.Equal(t, "Databases", groups[0].Achievements[1].Title)
	})

	t.Run("Category Filter Drops Students Without Matches", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{"hasInterned": {"true"}}))
		require.NoError(t, err)
		assert.Equal(t, []string{"s1", "s3"}, ids(joined))
		for _, j := range joined {
			require.Len(t, j.Groups, 1)
			assert.Equal(t, shared.CategoryInternships, j.Groups[0].Category)
		}
	})

	t.Run("Category And Date Filter", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{
			"hasInterned": {"true"},
			"fromYear":    {"2022-06"},
			"toYear":      {"2022-12"},
		}))
		require.NoError(t, err)
		// s1's internship starts 2023-01, s3's spans the range
		assert.Equal(t, []string{"s3"}, ids(joined))
	})

	t.Run("Ongoing Achievement Runs Until Now", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{
			"isPlaced": {"true"},
			"fromYear": {"2024-01"},
			"toYear":   {"2024-03"},
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"s2"}, ids(joined))
	})

	t.Run("Date Range Without Categories Uses Year Of Study", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{
			"fromYear": {"2024-01"},
			"toYear":   {"2024-12"},
		}))
		require.NoError(t, err)
		// s2 finished in 2021, s3's label does not parse
		assert.Equal(t, []string{"s1", "s4"}, ids(joined))
	})

	t.Run("Search Matches Student Or Achievement", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{"search": {"kappa"}}))
		require.NoError(t, err)
		assert.Equal(t, []string{"s3"}, ids(joined))

		joined, err = f.engine.Run(ctx, params(t, url.Values{"search": {"BALA"}}))
		require.NoError(t, err)
		assert.Equal(t, []string{"s2"}, ids(joined))

		joined, err = f.engine.Run(ctx, params(t, url.Values{"search": {"nobody"}}))
		require.NoError(t, err)
		assert.Empty(t, joined)
	})

	t.Run("Search Term Is Literal", func(t *testing.T) {
		joined, err := f.engine.Run(ctx, params(t, url.Values{"search": {".*"}}))
		require.NoError(t, err)
		assert.Empty(t, joined)
	})
}

func TestEngine_RunPreservesOrderUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	want := []string{}
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("s%02d", i)
		want = append(want, id)
		f.student(id, "Student "+id, "2021-2025")
		if i%3 == 0 {
			f.achievement(id, shared.CategoryCourse, "Course "+id, at(2022, time.January), nil)
		}
	}

	joined, err := f.engine.Run(context.Background(), filter.Params{})
	require.NoError(t, err)
	assert.Equal(t, want, ids(joined))

	joined, err = f.engine.Run(context.Background(), params(t, url.Values{"isCourse": {"true"}}))
	require.NoError(t, err)
	require.Len(t, joined, 14)
	for i := 1; i < len(joined); i++ {
		assert.Less(t, joined[i-1].Student.ID, joined[i].Student.ID)
	}
}

func TestEngine_One(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.student("s1", "Asha", "2021-2025")
	f.achievement("s1", shared.CategoryCourse, "Go", at(2022, time.January), nil)
	f.achievement("s1", shared.CategoryPlacement, "Offer", at(2024, time.February), nil)

	t.Run("All Achievements", func(t *testing.T) {
		j, err := f.engine.One(ctx, "s1", Selection{})
		require.NoError(t, err)
		assert.Equal(t, 2, j.Groups.Len())
	})

	t.Run("Selective Categories", func(t *testing.T) {
		j, err := f.engine.One(ctx, "s1", Selection{Categories: []shared.Category{shared.CategoryPlacement}})
		require.NoError(t, err)
		require.Len(t, j.Groups, 1)
		assert.Len(t, j.Groups.Get(shared.CategoryPlacement), 1)
		assert.Nil(t, j.Groups.Get(shared.CategoryCourse))
	})

	t.Run("No Match Keeps Student", func(t *testing.T) {
		j, err := f.engine.One(ctx, "s1", Selection{Categories: []shared.Category{shared.CategoryParticipation}})
		require.NoError(t, err)
		assert.Equal(t, "s1", j.Student.ID)
		assert.Empty(t, j.Groups)
	})

	t.Run("Filter Params", func(t *testing.T) {
		p := params(t, url.Values{"fromYear": {"2024-01"}, "toYear": {"2024-03"}})
		j, err := f.engine.One(ctx, "s1", Selection{Params: &p})
		require.NoError(t, err)
		// the ongoing course also reaches into the range
		assert.Equal(t, 2, j.Groups.Len())

		p = params(t, url.Values{"isPlaced": {"true"}})
		j, err = f.engine.One(ctx, "s1", Selection{Params: &p})
		require.NoError(t, err)
		assert.Equal(t, 1, j.Groups.Len())
	})

	t.Run("Unknown Student", func(t *testing.T) {
		_, err := f.engine.One(ctx, "missing", Selection{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}
