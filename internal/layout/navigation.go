package layout

import (
	"github.com/stemsi/exstem-quiz/internal/model"
)

// SummaryPage addresses the attempt summary rather than a question page.
const SummaryPage = -1

// CanAccessPage applies the navigation method. Free navigation reaches every
// page; sequential navigation allows only the summary, the current page and,
// when allowNext is set, the page after it.
func CanAccessPage(nav model.NavMethod, current, page int, allowNext bool) bool {
	if nav != model.NavSequential {
		return true
	}
	return page == SummaryPage || page == current || (allowNext && page == current+1)
}
