// Package speciesinfo looks up species summaries on Wikipedia.
package speciesinfo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

const (
	DefaultBaseURL   = "https://en.wikipedia.org/api/rest_v1"
	DefaultCacheTTL  = 24 * time.Hour
	DefaultRateLimit = 1.0 // requests per second
	maxNameLength    = 128
)

// ErrNotFound is returned when the provider has no page for a species.
var ErrNotFound = errors.NewStd("species not found")

// Info is a species summary.
type Info struct {
	ScientificName string `json:"scientific_name"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Extract        string `json:"extract"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
	PageURL        string `json:"page_url,omitempty"`
}

// Provider resolves scientific names to summaries. Results, including
// misses, are cached; concurrent lookups of one name share a request.
type Provider struct {
	baseURL string
	client  *httpclient.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	group   singleflight.Group
}

// NewProvider creates a provider. Zero values in settings fall back to defaults.
func NewProvider(s *conf.SpeciesInfoSettings, client *httpclient.Client) *Provider {
	baseURL, ttl, rps := DefaultBaseURL, DefaultCacheTTL, DefaultRateLimit
	if s != nil {
		if s.BaseURL != "" {
			baseURL = s.BaseURL
		}
		if s.CacheTTL > 0 {
			ttl = s.CacheTTL
		}
		if s.RateLimit > 0 {
			rps = s.RateLimit
		}
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cache.New(ttl, 2*ttl),
	}
}

// cachedMiss marks a negative cache entry.
type cachedMiss struct{}

// Lookup returns the summary for a scientific name.
func (p *Provider) Lookup(ctx context.Context, name string) (*Info, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	if cached, found := p.cache.Get(name); found {
		if info, ok := cached.(*Info); ok {
			return info, nil
		}
		return nil, notFound(name)
	}

	v, err, shared := p.group.Do(name, func() (any, error) {
		return p.fetch(ctx, name)
	})
	if shared {
		GetLogger().Debug("species lookup shared", logger.String("species", name))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Info), nil
}

func (p *Provider) fetch(ctx context.Context, name string) (*Info, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	title := strings.ReplaceAll(name, " ", "_")
	endpoint := p.baseURL + "/page/summary/" + url.PathEscape(title)

	start := time.Now()
	obj, err := p.client.GetJSON(ctx, endpoint)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			p.cache.SetDefault(name, cachedMiss{})
			return nil, notFound(name)
		}
		return nil, errors.New(err).
			Component("speciesinfo").
			Category(errors.CategorySpeciesInfo).
			Context("species", name).
			Timing("species_lookup", time.Since(start)).
			Build()
	}

	info, err := parseSummary(name, obj)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.cache.SetDefault(name, cachedMiss{})
			return nil, notFound(name)
		}
		return nil, errors.New(err).
			Component("speciesinfo").
			Category(errors.CategoryFileParsing).
			Context("species", name).
			Build()
	}

	p.cache.SetDefault(name, info)
	GetLogger().Debug("species summary fetched",
		logger.String("species", name),
		logger.Duration("duration", time.Since(start)))
	return info, nil
}

func parseSummary(name string, obj *jason.Object) (*Info, error) {
	// disambiguation pages do not describe a single species
	if kind, _ := obj.GetString("type"); kind == "disambiguation" || kind == "no-extract" {
		return nil, ErrNotFound
	}

	title, err := obj.GetString("title")
	if err != nil {
		return nil, fmt.Errorf("summary has no title: %w", err)
	}

	info := &Info{ScientificName: name, Title: title}
	info.Description, _ = obj.GetString("description")
	info.ThumbnailURL, _ = obj.GetString("thumbnail", "source")
	info.PageURL, _ = obj.GetString("content_urls", "desktop", "page")

	if extractHTML, err := obj.GetString("extract_html"); err == nil && extractHTML != "" {
		info.Extract = strings.TrimSpace(html2text.HTML2Text(extractHTML))
	} else {
		info.Extract, _ = obj.GetString("extract")
	}
	if info.Extract == "" {
		return nil, ErrNotFound
	}
	return info, nil
}

// NormalizeName collapses whitespace and capitalizes the genus, so
// "  doliornis   sclateri" becomes "Doliornis sclateri".
func NormalizeName(name string) (string, error) {
	fields := strings.Fields(strings.ReplaceAll(name, "_", " "))
	name = strings.Join(fields, " ")
	if name == "" || len(name) > maxNameLength {
		return "", invalidName(name)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '.' {
			return "", invalidName(name)
		}
	}
	runes := []rune(strings.ToLower(name))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes), nil
}

func invalidName(name string) error {
	return errors.Newf("invalid species name %q", name).
		Component("speciesinfo").
		Category(errors.CategoryValidation).
		Build()
}

func notFound(name string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrNotFound, name)).
		Component("speciesinfo").
		Category(errors.CategoryNotFound).
		Context("species", name).
		Build()
}
