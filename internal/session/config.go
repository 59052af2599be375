package session

import (
	"fmt"

	"proofdeps/internal/analysis"
	"proofdeps/internal/config"
	"proofdeps/internal/ir"
)

// OptionsFromConfig turns the query section of cfg into session options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	dir, err := analysis.ParseDirection(cfg.Query.Direction)
	if err != nil {
		return nil, err
	}
	depth, err := analysis.ParseDepth(cfg.Query.Depth)
	if err != nil {
		return nil, err
	}
	disabled := make([]ir.Category, 0, len(cfg.Query.DisabledCategories))
	for _, name := range cfg.Query.DisabledCategories {
		c, err := ir.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("query.disabled_categories: %w", err)
		}
		disabled = append(disabled, c)
	}
	return []Option{
		WithModes(dir, depth, analysis.NewFilter(disabled...)),
		WithSuppressWindow(cfg.Query.SuppressWindow),
	}, nil
}
