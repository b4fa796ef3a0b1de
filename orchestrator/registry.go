package orchestrator

import (
	"aiharvest/arxiv"
	"aiharvest/codehost"
	"aiharvest/config"
	"aiharvest/qa"
	"aiharvest/rssfeeds"
)

// BuildSources assembles the adapter registry from configuration. Adapters
// receive their source enumeration here; none holds an embedded catalog.
// Per-source rate ceilings come from the catalog's requests_per_minute map.
// enrichContent gates the extra detail calls: readability summaries for feed
// items and top-hit repository enrichment.
func BuildSources(cfg *config.Config, enrichContent bool) []Source {
	rpm := cfg.Sources.RequestsPerMin
	var sources []Source

	if len(cfg.Sources.ArxivCategories) > 0 {
		sources = append(sources, arxiv.New(cfg.Sources.ArxivCategories, rpm["arxiv"]))
	}
	if len(cfg.Sources.CodeHostQueries) > 0 {
		sources = append(sources, codehost.New(cfg.Sources.CodeHostQueries, cfg.GitHubToken, rpm["codehost"], enrichContent))
	}
	if len(cfg.Sources.Feeds) > 0 {
		refs := make([]rssfeeds.FeedRef, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			refs[i] = rssfeeds.FeedRef{Name: f.Name, URL: f.URL}
		}
		sources = append(sources, rssfeeds.NewGroup(refs, enrichContent, rpm["rssfeeds"]))
	}
	if len(cfg.Sources.QATags) > 0 {
		sources = append(sources, qa.New(cfg.Sources.QATags, rpm["qa"]))
	}

	return sources
}
