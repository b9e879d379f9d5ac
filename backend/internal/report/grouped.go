package report

import "student_achievements/backend/internal/shared"

// Group holds one category's achievements in the order they were fetched
type Group struct {
	Category     shared.Category
	Achievements []shared.Achievement
}

// Grouped is an ordered category mapping. Categories appear in the order
// they were first seen in the student's own achievement list.
type Grouped []Group

// GroupByCategory buckets achievements without reordering them
func GroupByCategory(achievements []shared.Achievement) Grouped {
	grouped := Grouped{}
	index := map[shared.Category]int{}

	for _, a := range achievements {
		i, ok := index[a.Category]
		if !ok {
			i = len(grouped)
			index[a.Category] = i
			grouped = append(grouped, Group{Category: a.Category})
		}
		grouped[i].Achievements = append(grouped[i].Achievements, a)
	}
	return grouped
}

// Get returns the achievements of one category, or nil
func (g Grouped) Get(c shared.Category) []shared.Achievement {
	for _, group := range g {
		if group.Category == c {
			return group.Achievements
		}
	}
	return nil
}

// Len counts achievements across every category
func (g Grouped) Len() int {
	n := 0
	for _, group := range g {
		n += len(group.Achievements)
	}
	return n
}
