package metamodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
)

// ValidationIssue is a single problem found on a need
type ValidationIssue struct {
	Need    string
	Message string
}

func (i ValidationIssue) String() string {
	return i.Need + ": " + i.Message
}

// Validate checks all needs against the metamodel. The result is sorted by need ID and message.
func (m *Metamodel) Validate(set needs.Set) []ValidationIssue {
	issues := []ValidationIssue{}
	report := func(need *needs.Need, format string, args ...interface{}) {
		issues = append(issues, ValidationIssue{Need: need.ID, Message: fmt.Sprintf(format, args...)})
	}

	for _, id := range set.IDs() {
		need := set[id]
		nt, ok := m.Type(need.Type)
		if !ok {
			report(need, "unknown need type %q", need.Type)
			continue
		}

		if nt.Prefix != "" && !strings.HasPrefix(need.ID, nt.Prefix) {
			report(need, "id does not start with %q", nt.Prefix)
		}

		for _, opt := range nt.MandatoryOptions {
			value, present := need.Option(opt.Name)
			if !present {
				report(need, "missing mandatory option %q", opt.Name)
			} else if !opt.Matches(value) {
				report(need, "option %q value %q does not match %s", opt.Name, value, opt.Pattern)
			}
		}

		for _, opt := range nt.OptionalOptions {
			value, present := need.Option(opt.Name)
			if present && !opt.Matches(value) {
				report(need, "option %q value %q does not match %s", opt.Name, value, opt.Pattern)
			}
		}

		for _, link := range nt.MandatoryLinks {
			if len(need.Links[link.Name]) == 0 {
				report(need, "missing mandatory link %q", link.Name)
			}
		}

		for _, link := range nt.AllLinks() {
			for _, target := range need.Links[link.Name] {
				targetNeed, ok := set[target]
				if !ok {
					report(need, "link %q references unknown need %q", link.Name, target)
					continue
				}

				if len(link.Targets) > 0 && !containsString(link.Targets, targetNeed.Type) {
					report(need, "link %q target %q has type %q, expected one of %s",
						link.Name, target, targetNeed.Type, strings.Join(link.Targets, ", "))
				}
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Need != issues[j].Need {
			return issues[i].Need < issues[j].Need
		}
		return issues[i].Message < issues[j].Message
	})

	return issues
}

func containsString(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}
