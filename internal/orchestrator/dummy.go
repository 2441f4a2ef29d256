package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/rank"
	"github.com/JakeFAU/techradar/internal/rules"
)

// categorySeeds are the title words synthesized items cycle through.
var categorySeeds = map[radar.Category][]string{
	radar.CategoryAI:       {"LLM", "Agent", "Model", "Prompt"},
	radar.CategoryFE:       {"React", "Next.js", "CSS", "UI"},
	radar.CategoryBE:       {"API", "Database", "Cache", "Queue"},
	radar.CategoryDevOps:   {"Kubernetes", "CI", "Deployment", "Observability"},
	radar.CategoryData:     {"Data", "Pipeline", "Analytics", "Warehouse"},
	radar.CategorySecurity: {"Security", "Vulnerability", "CVE", "Patch"},
	radar.CategoryOther:    {"Update", "Note", "Insight", "Misc"},
}

// dummySignals is cycled by category; only the first item of each category carries one.
var dummySignals = []string{"CVE", "breaking", "deprecated", "release", "performance"}

const dummyBaseURL = "https://example.com"

// dummy synthesizes items per category without touching the network. It produces no source
// reports and no health updates.
func (o *Orchestrator) dummy(runID string, params radar.RunParams, sources []radar.Source, engine *rules.Engine) (outcome, error) {
	now := o.clock.Now()
	var items []radar.FetchedItem

	for catIdx, category := range radar.Categories {
		limit := params.Limits[category]
		if limit <= 0 {
			continue
		}
		var pool []radar.Source
		for _, src := range sources {
			if src.Enabled && src.CategoryDefault == category {
				pool = append(pool, src)
			}
		}
		seeds := categorySeeds[category]

		for i := 0; i < limit; i++ {
			signal := ""
			if i == 0 {
				signal = dummySignals[catIdx%len(dummySignals)]
			}
			seed := seeds[i%len(seeds)]
			title := fmt.Sprintf("%s %s in %s", seed, dummyHeadline(signal), category)
			snippet := dummySnippet(seed, i, signal)
			url := fmt.Sprintf("%s/%s/%d-%d-%d", dummyBaseURL, strings.ToLower(string(category)), now.UnixMilli(), catIdx, i)
			published := now.Add(-time.Duration(catIdx*3600+i*900) * time.Second)
			signals := o.classifier.DetectSignals(title + " " + snippet)

			var src *radar.Source
			if len(pool) > 0 {
				src = &pool[i%len(pool)]
			}
			item := radar.FetchedItem{
				RunID:       runID,
				Category:    category,
				Title:       title,
				URL:         url,
				PublishedAt: published,
				Snippet:     snippet,
				Signals:     signals,
				Score:       float64(100 - i*3 - catIdx*2 + len(signals)*10),
				Raw: map[string]any{
					"seed":               seed,
					"category":           string(category),
					rank.RawOriginalLink: url,
				},
			}
			input := radar.ClassifyInput{Title: title, URL: url, Snippet: snippet}
			if src != nil {
				item.SourceID = src.ID
				item.Raw[rawSourceKey] = src.Key
				item.Raw[rawSourceURL] = src.Key
				input.SourceName = src.Name
				input.SourceTags = src.Tags
			}
			item.ContentTypeHint = o.classifier.Classify(input)

			result := engine.Apply(rules.Target{Title: title, Snippet: snippet, URL: url}, src)
			if result.Muted {
				continue
			}
			item.Score += result.Delta

			id, err := o.ids.NewID()
			if err != nil {
				return outcome{}, fmt.Errorf("generate item id: %w", err)
			}
			item.ID = id
			items = append(items, item)
		}
	}
	return outcome{items: items, fetched: len(items)}, nil
}

func dummyHeadline(signal string) string {
	if signal == "" {
		return "update"
	}
	return strings.ToUpper(signal)
}

func dummySnippet(seed string, index int, signal string) string {
	text := fmt.Sprintf("%s update %d. Short overview of changes and impact.", seed, index+1)
	if signal != "" {
		text += fmt.Sprintf(" Includes %s details.", signal)
	}
	return text
}
