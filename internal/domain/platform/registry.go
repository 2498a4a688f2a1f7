package platform

import (
	"context"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// Extractor is the common surface of every supported platform.
type Extractor interface {
	Platform() Platform
}

// PageExtractor drives a browser: Plan builds the steps, Parse turns
// the captured document into a row. Parse never errors; failures land
// in the row's error field the way every row always has.
type PageExtractor interface {
	Extractor
	Plan(url string) ([]task.Step, error)
	Parse(doc, url string) *Metrics
}

// FollowUpExtractor is a PageExtractor that sometimes needs a second
// browser pass (typically the author's profile page).
type FollowUpExtractor interface {
	PageExtractor
	FollowUp(m *Metrics) ([]task.Step, bool)
	ParseFollowUp(doc string, m *Metrics)
}

// StaticExtractor works from a plain HTTP fetch; no browser session.
type StaticExtractor interface {
	Extractor
	Extract(ctx context.Context, url string) (*Metrics, error)
}

// Fetcher is the slice of the HTTP client static extractors need.
type Fetcher interface {
	GetHTML(ctx context.Context, url string) (string, error)
}

// Registry resolves platforms to their extractors.
type Registry struct {
	byPlatform map[Platform]Extractor
}

// NewRegistry indexes the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byPlatform: make(map[Platform]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byPlatform[e.Platform()] = e
	}
	return r
}

// Defaults wires every supported platform.
func Defaults(fetcher Fetcher) *Registry {
	return NewRegistry(
		NewX(),
		NewYouTube(),
		NewTikTok(fetcher),
		NewStockbit(),
		NewInstagram(),
		NewLinkedIn(),
	)
}

// Get returns the extractor for a platform.
func (r *Registry) Get(p Platform) (Extractor, bool) {
	e, ok := r.byPlatform[p]
	return e, ok
}

// Platforms lists supported platforms in presentation order.
func (r *Registry) Platforms() []Platform {
	order := []Platform{
		PlatformX,
		PlatformYouTube,
		PlatformTikTok,
		PlatformStockbit,
		PlatformInstagram,
		PlatformLinkedIn,
	}
	ps := make([]Platform, 0, len(order))
	for _, p := range order {
		if _, ok := r.byPlatform[p]; ok {
			ps = append(ps, p)
		}
	}
	return ps
}

// DisplayNames lists supported platform display names in presentation order.
func (r *Registry) DisplayNames() []string {
	ps := r.Platforms()
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.DisplayName())
	}
	return names
}
