package nocodb

import (
	"fmt"
	"strings"

	"stash-api/internal/domain"
)

const approvedCondition = "(approved,eq,1)"

// buildWhere renders filters as a NocoDB where expression. Conditions are
// ANDed; design styles match if any of them is present.
func buildWhere(filters domain.AssetFilters, approvedOnly bool) string {
	var conditions []string

	if approvedOnly {
		conditions = append(conditions, approvedCondition)
	}

	if filters.Category != "" && filters.Category != "all" {
		conditions = append(conditions, fmt.Sprintf("(category,eq,%s)", filters.Category))
	}

	if filters.MadeByDB {
		conditions = append(conditions, "(made_by_db,eq,1)")
	}

	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title,like,%s)", filters.Search))
	}

	if filters.Industry != "" {
		conditions = append(conditions, fmt.Sprintf("(industry_tags,eq,%s)", filters.Industry))
	}

	if len(filters.DesignStyles) > 0 {
		styles := make([]string, 0, len(filters.DesignStyles))
		for _, style := range filters.DesignStyles {
			if style = strings.TrimSpace(style); style != "" {
				styles = append(styles, fmt.Sprintf("(design_style,like,%%%s%%)", style))
			}
		}
		if len(styles) > 0 {
			conditions = append(conditions, "("+strings.Join(styles, "~or")+")")
		}
	}

	return strings.Join(conditions, "~and")
}

func idWhere(id string, approvedOnly bool) string {
	where := fmt.Sprintf("(Id,eq,%s)", id)
	if approvedOnly {
		where += "~and" + approvedCondition
	}
	return where
}
