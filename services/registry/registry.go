// Package registry reads the external keyword registry. Rows are consumed
// strictly read-only; the registry writer lives outside this service.
package registry

import (
	"fmt"
	"log"
	"sort"

	"gorm.io/gorm"

	"trendpulse/models"
)

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ActiveGroups returns the active keyword groups for one geo/category.
// Terms are ordered anchor-first within each group; groups come back in
// slug order so every run processes them deterministically. An empty
// result is a valid no-op, not an error.
func (s *Service) ActiveGroups(geo string, category int) ([]models.KeywordGroup, error) {
	var rows []models.TrendKeyword
	err := s.db.
		Where("geo = ? AND category = ? AND is_active = ?", geo, category, true).
		Order("group_name ASC, is_anchor DESC, keyword ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword registry: %w", err)
	}

	bySlug := make(map[string]*models.KeywordGroup)
	var order []string
	for _, row := range rows {
		slug := models.SlugifyGroup(row.GroupName)
		if slug == "" {
			log.Printf("[registry] group %q slugifies to nothing, skipping keyword %q", row.GroupName, row.Keyword)
			continue
		}
		g, ok := bySlug[slug]
		if !ok {
			g = &models.KeywordGroup{Slug: slug, Geo: geo, Category: category}
			bySlug[slug] = g
			order = append(order, slug)
		}
		g.Terms = append(g.Terms, row.Keyword)
	}

	sort.Strings(order)
	groups := make([]models.KeywordGroup, 0, len(order))
	for _, slug := range order {
		groups = append(groups, *bySlug[slug])
	}
	return groups, nil
}
