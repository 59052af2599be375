package ir

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Category is the display classification derived from a node's kind and subtype.
type Category string

const (
	ExplicitAssumption             Category = "ExplicitAssumption"
	ImplicitAssumption             Category = "ImplicitAssumption"
	InternalAssumption             Category = "InternalAssumption"
	ExplicitAssertion              Category = "ExplicitAssertion"
	ExplicitAssertionPostcondition Category = "ExplicitAssertionPostcondition"
	ImplicitAssertion              Category = "ImplicitAssertion"
	Infeasible                     Category = "Infeasible"
	Unknown                        Category = "Unknown"
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	ExplicitAssumption,
	ImplicitAssumption,
	InternalAssumption,
	ExplicitAssertion,
	ExplicitAssertionPostcondition,
	ImplicitAssertion,
	Infeasible,
	Unknown,
}

// ParseCategory accepts the canonical name in any letter case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range AllCategories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CategorySet is an unordered set of categories.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

func (s CategorySet) Add(c Category) {
	s[c] = struct{}{}
}

func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Union adds every member of other to s.
func (s CategorySet) Union(other CategorySet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the members in AllCategories order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for _, c := range AllCategories {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	// Categories outside the closed set only appear in hand-built sets.
	var extra []Category
	for c := range s {
		if !isKnown(c) {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func (s CategorySet) Clone() CategorySet {
	out := make(CategorySet, len(s))
	out.Union(s)
	return out
}

// MarshalJSON encodes the set as a sorted list of names.
func (s CategorySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *CategorySet) UnmarshalJSON(data []byte) error {
	var cats []Category
	if err := json.Unmarshal(data, &cats); err != nil {
		return err
	}
	*s = NewCategorySet(cats...)
	return nil
}

func isKnown(c Category) bool {
	for _, k := range AllCategories {
		if k == c {
			return true
		}
	}
	return false
}
