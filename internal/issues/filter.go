package issues

import (
	"fmt"
	"slices"
	"time"

	"github.com/joescharf/issues/internal/store"
)

// filterable maps each query key that may constrain a listing to the function
// adding its values to the store filter. Keys outside this set are never sent
// to the store.
var filterable = map[string]func(*store.IssueListFilter, []string) error{
	FieldID: func(f *store.IssueListFilter, vs []string) error {
		f.IDs = append(f.IDs, vs...)
		return nil
	},
	FieldIssueTitle: func(f *store.IssueListFilter, vs []string) error {
		f.Titles = append(f.Titles, vs...)
		return nil
	},
	FieldIssueText: func(f *store.IssueListFilter, vs []string) error {
		f.Texts = append(f.Texts, vs...)
		return nil
	},
	FieldCreatedBy: func(f *store.IssueListFilter, vs []string) error {
		f.CreatedBy = append(f.CreatedBy, vs...)
		return nil
	},
	FieldAssignedTo: func(f *store.IssueListFilter, vs []string) error {
		f.AssignedTo = append(f.AssignedTo, vs...)
		return nil
	},
	FieldStatusText: func(f *store.IssueListFilter, vs []string) error {
		f.StatusText = append(f.StatusText, vs...)
		return nil
	},
	FieldOpen: func(f *store.IssueListFilter, vs []string) error {
		for _, v := range vs {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			f.Open = append(f.Open, b)
		}
		return nil
	},
	FieldCreatedOn: func(f *store.IssueListFilter, vs []string) error {
		ts, err := parseTimes(vs)
		f.CreatedOn = append(f.CreatedOn, ts...)
		return err
	},
	FieldUpdatedOn: func(f *store.IssueListFilter, vs []string) error {
		ts, err := parseTimes(vs)
		f.UpdatedOn = append(f.UpdatedOn, ts...)
		return err
	},
}

// BuildFilter translates query parameters into an equality filter scoped to
// project. It reports false when no issue can match: an unknown key or a
// value that cannot equal any stored value of its field.
func BuildFilter(project string, query map[string][]string) (store.IssueListFilter, bool) {
	filter := store.IssueListFilter{Project: project}
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		if key == FieldProject {
			// The path already fixes the project.
			if !slices.Contains(values, project) {
				return store.IssueListFilter{}, false
			}
			continue
		}
		add, ok := filterable[key]
		if !ok {
			return store.IssueListFilter{}, false
		}
		if err := add(&filter, values); err != nil {
			return store.IssueListFilter{}, false
		}
	}
	return filter, true
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func parseTimes(vs []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(vs))
	for _, v := range vs {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
