package generator

import (
	"fmt"
	"slices"

	"setback/internal/domain"
	"setback/internal/library"
)

// Validate checks the loaded content against what GenerateResponse needs:
// every category it draws from has templates, every placeholder is a bound
// variable, and learning templates name the failure type and the count.
// All problems are reported together in one ConfigurationError.
func (g *Generator) Validate() error {
	var problems []string

	required := []domain.Category{domain.CategoryLearning, domain.CategoryReassurance}
	for _, ft := range domain.FailureTypes {
		if c := g.category(ft); !slices.Contains(required, c) {
			required = append(required, c)
		}
	}
	for _, c := range required {
		if len(g.lib.Templates(c)) == 0 {
			problems = append(problems, fmt.Sprintf("category %s has no templates", c))
		}
	}

	for _, ft := range domain.FailureTypes {
		for _, step := range g.settings.RecoveryPlans[ft] {
			if step == "" {
				problems = append(problems, fmt.Sprintf("recovery plan for %s has an empty step", ft))
			}
		}
	}

	for _, c := range domain.Categories {
		for _, t := range g.lib.Templates(c) {
			names := library.Placeholders(t.Text)
			for _, name := range names {
				if !slices.Contains(Variables, name) {
					problems = append(problems, fmt.Sprintf("template %s uses undeclared variable {%s}", t.ID, name))
				}
			}
			if c == domain.CategoryLearning {
				for _, need := range []string{"failure_type", "count"} {
					if !slices.Contains(names, need) {
						problems = append(problems, fmt.Sprintf("learning template %s must mention {%s}", t.ID, need))
					}
				}
			}
		}
	}
	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	return nil
}
