package classify

import (
	"strings"

	"github.com/JakeFAU/techradar/internal/radar"
)

var categoryKeywords = map[radar.Category][]string{
	radar.CategoryAI:       {"ai", "ml", "machine learning", "deep learning", "llm", "genai", "gpt", "prompt", "model", "embedding"},
	radar.CategoryFE:       {"frontend", "fe", "react", "next", "next.js", "css", "javascript", "typescript", "web", "ui", "browser"},
	radar.CategoryBE:       {"backend", "be", "server", "api", "database", "db", "cache", "queue", "kafka", "redis", "postgres", "mysql"},
	radar.CategoryDevOps:   {"devops", "kubernetes", "k8s", "docker", "ci", "cd", "infra", "sre", "cloud", "aws", "gcp", "azure", "terraform", "helm", "observability", "monitoring"},
	radar.CategoryData:     {"data", "analytics", "warehouse", "etl", "elt", "pipeline", "dbt", "spark", "flink", "airflow", "bigquery", "snowflake", "redshift"},
	radar.CategorySecurity: {"security", "secure", "vulnerability", "vuln", "cve", "patch", "exploit", "advisory", "risk"},
	radar.CategoryOther:    nil,
}

// InferCategory scores each category by how many of its keywords occur as substrings of the
// combined title, snippet, and tags. The highest nonzero score wins and ties go to the category
// declared first. With no hits the fallback is returned.
func InferCategory(title, snippet string, tags []string, fallback radar.Category) radar.Category {
	text := strings.ToLower(strings.Join([]string{title, snippet, strings.Join(tags, " ")}, " "))

	best := fallback
	bestScore := 0
	for _, category := range radar.Categories {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(text, keyword) {
				score++
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}
