package radar

// Category is a topic bucket used for ranking and per-category limits.
type Category string

// Categories in priority order. Ties during inference keep the earlier entry.
const (
	CategoryAI       Category = "AI"
	CategoryFE       Category = "FE"
	CategoryBE       Category = "BE"
	CategoryDevOps   Category = "DEVOPS"
	CategoryData     Category = "DATA"
	CategorySecurity Category = "SECURITY"
	CategoryOther    Category = "OTHER"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryAI,
	CategoryFE,
	CategoryBE,
	CategoryDevOps,
	CategoryData,
	CategorySecurity,
	CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ContentType is the coarse kind of an item as inferred by the classifier.
type ContentType string

// Content types.
const (
	ContentTypeReleaseNote ContentType = "RELEASE_NOTE"
	ContentTypeCompanyBlog ContentType = "COMPANY_BLOG"
	ContentTypeNews        ContentType = "NEWS"
	ContentTypeOther       ContentType = "OTHER"
)

// Signal is a short topical tag detected in item text.
type Signal string

// Signals in detection order.
const (
	SignalSecurity    Signal = "security"
	SignalBreaking    Signal = "breaking"
	SignalDeprecation Signal = "deprecation"
	SignalRelease     Signal = "release"
	SignalPerf        Signal = "perf"
	SignalMigration   Signal = "migration"
	SignalBugfix      Signal = "bugfix"
	SignalTooling     Signal = "tooling"
	SignalAPI         Signal = "api"
)

// Signals lists every signal in detection order.
var Signals = []Signal{
	SignalSecurity,
	SignalBreaking,
	SignalDeprecation,
	SignalRelease,
	SignalPerf,
	SignalMigration,
	SignalBugfix,
	SignalTooling,
	SignalAPI,
}
