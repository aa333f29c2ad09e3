// Package pipeline wires fetching, cleaning, extraction, clustering,
// validation and review routing into the ingest operations the CLI exposes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kvollan/ridgeline/internal/cache"
	"github.com/kvollan/ridgeline/internal/clean"
	"github.com/kvollan/ridgeline/internal/cluster"
	"github.com/kvollan/ridgeline/internal/extract"
	"github.com/kvollan/ridgeline/internal/fingerprint"
	"github.com/kvollan/ridgeline/internal/geo"
	"github.com/kvollan/ridgeline/internal/llm"
	"github.com/kvollan/ridgeline/internal/model"
	"github.com/kvollan/ridgeline/internal/orchestrate"
	"github.com/kvollan/ridgeline/internal/review"
	"github.com/kvollan/ridgeline/internal/validate"
)

// Pipeline runs a document from raw URL or text to a routed cluster.
type Pipeline struct {
	fetcher      *Fetcher
	orchestrator *orchestrate.Orchestrator
	geocoder     geo.Geocoder
	manager      *cluster.Manager
	validator    *validate.Validator
	router       *review.Router
	store        cluster.Store
	fetchCache   cache.Cache
	config       *model.Config
}

// New builds a pipeline over the given store. Previously stored clusters
// are loaded into the in-memory arena so re-ingests and merges see them.
func New(ctx context.Context, cfg *model.Config, store cluster.Store) (*Pipeline, error) {
	var provider llm.Provider
	if cfg.LLM.Provider != "" {
		p, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: LLM provider disabled: %v\n", err)
		} else {
			provider = p
		}
	}

	orchestrator := orchestrate.New(extract.New(), cfg.Extraction,
		orchestrate.WithProvider(provider),
		orchestrate.WithMaxRetries(cfg.LLM.MaxRetries),
	)

	var geocoder geo.Geocoder
	if cfg.Geo.Enabled {
		geocoder = geo.NewNominatim(cfg.Geo)
	}

	var fetchCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			fetchCache = cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		} else {
			fetchCache = cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
		}
	}

	manager := cluster.NewManager(cfg.Cluster, cfg.Extraction)
	stored, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}
	manager.Restore(stored)

	return &Pipeline{
		fetcher:      NewFetcher(cfg.HTTP),
		orchestrator: orchestrator,
		geocoder:     geocoder,
		manager:      manager,
		validator:    validate.New(),
		router:       review.NewRouter(cfg.Extraction.ConfidenceThreshold),
		store:        store,
		fetchCache:   fetchCache,
		config:       cfg,
	}, nil
}

// Result is the outcome of one ingest or reprocess.
type Result struct {
	ClusterID string                  `json:"cluster_id"`
	Status    model.ClusterStatus     `json:"status"`
	Created   bool                    `json:"created,omitempty"`
	MergedIDs []string                `json:"merged_ids,omitempty"`
	Reasons   []string                `json:"hold_reasons,omitempty"`
	Overall   float64                 `json:"overall_confidence"`
	Report    *model.ValidationReport `json:"report,omitempty"`
	Document  *model.Document         `json:"document,omitempty"`
	Record    *model.CandidateRecord  `json:"record,omitempty"`
}

// IngestURL fetches, cleans and ingests a single article URL.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) (*Result, error) {
	html, finalURL, err := p.fetchHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return p.IngestHTML(ctx, finalURL, html)
}

// IngestHTML cleans raw article HTML and ingests it under the given URL.
func (p *Pipeline) IngestHTML(ctx context.Context, rawURL, rawHTML string) (*Result, error) {
	cleaned, err := clean.HTML(rawHTML, rawURL)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", rawURL, err)
	}

	doc, err := p.buildDocument(rawURL, cleaned.Text, cleaned.Title, cleaned.Publisher, cleaned.Published)
	if err != nil {
		return nil, err
	}
	return p.process(ctx, doc)
}

// IngestText ingests pre-cleaned article text, bypassing fetch and HTML
// cleaning. The URL still provides the dedup key.
func (p *Pipeline) IngestText(ctx context.Context, rawURL, text string, published *time.Time) (*Result, error) {
	doc, err := p.buildDocument(rawURL, text, "", "", published)
	if err != nil {
		return nil, err
	}
	return p.process(ctx, doc)
}

// Reprocess reruns extraction, canonical election, validation and routing
// over the stored member documents of a cluster.
func (p *Pipeline) Reprocess(ctx context.Context, clusterID string) (*Result, error) {
	// Snapshot the membership under the lock; extraction is slow and must
	// not hold up concurrent assignments.
	var rootID string
	var members []model.Member
	if err := p.manager.Update(clusterID, func(c *model.Cluster) error {
		rootID = c.ID
		members = append(members, c.Members...)
		return nil
	}); err != nil {
		return nil, err
	}

	recs := make(map[string]*model.CandidateRecord, len(members))
	var holds []string
	for _, m := range members {
		rec, err := p.orchestrator.Extract(ctx, m.Document)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", m.Document.URL, err)
		}
		holds = append(holds, p.geocode(ctx, rec)...)
		recs[m.Document.URLKey] = rec
	}

	updated, err := p.manager.SetRecords(rootID, recs)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, updated.ID, false, nil, holds)
}

// fetchHTML serves the article body from the fetch cache when possible.
func (p *Pipeline) fetchHTML(ctx context.Context, rawURL string) (html, finalURL string, err error) {
	key := cache.CacheKey(rawURL)
	if p.fetchCache != nil {
		if cached, ok := p.fetchCache.Get(key); ok {
			return string(cached), rawURL, nil
		}
	}

	res, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", "", err
	}
	if p.fetchCache != nil {
		if err := p.fetchCache.Set(key, []byte(res.HTML), p.config.Cache.TTL); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache write failed: %v\n", err)
		}
	}
	return res.HTML, res.FinalURL, nil
}

func (p *Pipeline) buildDocument(rawURL, text, title, publisher string, published *time.Time) (*model.Document, error) {
	key, err := fingerprint.URLKey(rawURL)
	if err != nil {
		return nil, fmt.Errorf("url key %s: %w", rawURL, err)
	}

	sig := fingerprint.New(text)
	now := time.Now().UTC()
	return &model.Document{
		ID:          ulid.Make().String(),
		URL:         rawURL,
		URLKey:      key,
		Publisher:   publisher,
		Title:       title,
		Published:   published,
		CleanedText: text,
		Signature:   uint64(sig),
		SignatureOK: !sig.IsNull(),
		FetchedAt:   now,
		CleanedAt:   now,
	}, nil
}

// process runs extraction, clustering, validation and routing for one
// document, then persists every touched cluster.
func (p *Pipeline) process(ctx context.Context, doc *model.Document) (*Result, error) {
	rec, err := p.orchestrator.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", doc.URL, err)
	}

	holds := p.geocode(ctx, rec)

	asn, err := p.manager.Assign(doc, rec)
	if err != nil {
		return nil, fmt.Errorf("assign %s: %w", doc.URL, err)
	}
	for _, field := range asn.Conflicts {
		holds = append(holds, fmt.Sprintf("merge conflict on %s", field))
	}

	res, err := p.finish(ctx, asn.Cluster.ID, asn.Created, asn.MergedIDs, holds)
	if err != nil {
		return nil, err
	}
	res.Document = doc
	res.Record = rec

	for _, id := range asn.MergedIDs {
		if absorbed, ok := p.manager.Get(id); ok {
			if err := p.store.Put(ctx, absorbed); err != nil {
				return nil, fmt.Errorf("store cluster %s: %w", id, err)
			}
		}
	}
	return res, nil
}

// finish validates, routes and persists the target cluster. The whole
// sequence runs under the manager lock so a concurrent assignment cannot
// observe or overwrite a half-routed cluster.
func (p *Pipeline) finish(ctx context.Context, clusterID string, created bool, mergedIDs, holds []string) (*Result, error) {
	res := &Result{Created: created, MergedIDs: mergedIDs}
	err := p.manager.Update(clusterID, func(c *model.Cluster) error {
		// A validated cluster that changed goes back through open before
		// the router decides again.
		if c.Status == model.StatusValidated {
			if err := review.Transition(c, model.StatusOpen); err != nil {
				return err
			}
		}

		report := p.validator.Validate(c)
		reasons, err := p.router.Route(c, report, holds...)
		if err != nil {
			return fmt.Errorf("route cluster %s: %w", c.ID, err)
		}

		if err := p.store.Put(ctx, c); err != nil {
			return fmt.Errorf("store cluster %s: %w", c.ID, err)
		}

		res.ClusterID = c.ID
		res.Status = c.Status
		res.Reasons = reasons
		res.Overall = c.Overall
		res.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// geocode resolves record coordinates from the location name. Ambiguity
// becomes a hold reason; a geocoder failure degrades to a warning.
func (p *Pipeline) geocode(ctx context.Context, rec *model.CandidateRecord) []string {
	if p.geocoder == nil || rec.Coords != nil {
		return nil
	}
	loc, ok := rec.Get(model.FieldLocationName)
	if !ok {
		return nil
	}
	jurisdiction := ""
	if fv, ok := rec.Get(model.FieldJurisdiction); ok {
		jurisdiction = fv.Value
	}

	cands, err := p.geocoder.Geocode(ctx, loc.Value, jurisdiction)
	if err != nil {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("geocode %q failed: %v", loc.Value, err))
		fmt.Fprintf(os.Stderr, "Warning: geocode %q failed: %v\n", loc.Value, err)
		return nil
	}
	switch len(cands) {
	case 0:
		return nil
	case 1:
		coords := cands[0].Coords
		rec.Coords = &coords
		return nil
	default:
		return []string{fmt.Sprintf("ambiguous location %q: %d geocode candidates", loc.Value, len(cands))}
	}
}

// Manager exposes the cluster arena for CLI queries.
func (p *Pipeline) Manager() *cluster.Manager { return p.manager }
