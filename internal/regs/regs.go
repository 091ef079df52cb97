// Package regs scrapes the state hunting-season table for the species the
// map is about and keeps the result on disk.
package regs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joeblew999/grousemap/internal/fetch"
)

// Defaults for the West Virginia season page.
const (
	DefaultURL     = "https://wvdnr.gov/hunting-seasons/"
	DefaultSpecies = "Ruffed Grouse"
	// BrowserUserAgent is sent because the page rejects unknown clients.
	BrowserUserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/117.0"
)

// Regulations are the season rows for one species.
type Regulations struct {
	Species   string                       `json:"species" doc:"Species searched for" example:"Ruffed Grouse"`
	Source    string                       `json:"source" doc:"Page the table was read from"`
	FetchedAt time.Time                    `json:"fetchedAt" doc:"When the page was read"`
	Seasons   map[string]map[string]string `json:"seasons" doc:"Per matching Species cell, the other columns by header"`
}

// Extract selects the rows whose Species column contains species.
func Extract(t Table, species string) (map[string]map[string]string, error) {
	col := t.Column("Species")
	if col < 0 {
		return nil, fmt.Errorf("table has no Species column (header %q)", t.Header)
	}

	out := map[string]map[string]string{}
	for _, row := range t.Rows {
		if col >= len(row) || !strings.Contains(row[col], species) {
			continue
		}
		cols := map[string]string{}
		for i, h := range t.Header {
			if i == col {
				continue
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			cols[h] = v
		}
		out[row[col]] = cols
	}
	return out, nil
}

// Config configures a Service.
type Config struct {
	URL       string
	Species   string
	CachePath string
	Fetcher   *fetch.Client
}

// Service serves the cached regulations, scraping them on first use.
type Service struct {
	config Config
	now    func() time.Time

	mu     sync.Mutex
	cached *Regulations
}

// NewService creates a service, filling zero config values with defaults.
func NewService(config Config) *Service {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Species == "" {
		config.Species = DefaultSpecies
	}
	if config.Fetcher == nil {
		config.Fetcher = fetch.New(fetch.Config{RequestsPerSec: 1, UserAgent: BrowserUserAgent})
	}
	return &Service{config: config, now: time.Now}
}

// Get returns the regulations from memory or the cache file, scraping the
// page when neither has them or refresh is set.
func (s *Service) Get(ctx context.Context, refresh bool) (Regulations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !refresh {
		if s.cached != nil {
			return *s.cached, nil
		}
		if r, err := s.readCache(); err == nil {
			s.cached = &r
			return r, nil
		}
	}

	r, err := s.scrape(ctx)
	if err != nil {
		return Regulations{}, err
	}
	s.cached = &r
	if err := s.writeCache(r); err != nil {
		return r, fmt.Errorf("caching regulations: %w", err)
	}
	return r, nil
}

func (s *Service) scrape(ctx context.Context) (Regulations, error) {
	body, _, err := s.config.Fetcher.Get(ctx, s.config.URL)
	if err != nil {
		return Regulations{}, fmt.Errorf("fetching season page: %w", err)
	}
	t, err := FirstTable(bytes.NewReader(body))
	if err != nil {
		return Regulations{}, fmt.Errorf("%s: %w", s.config.URL, err)
	}
	seasons, err := Extract(t, s.config.Species)
	if err != nil {
		return Regulations{}, fmt.Errorf("%s: %w", s.config.URL, err)
	}
	return Regulations{
		Species:   s.config.Species,
		Source:    s.config.URL,
		FetchedAt: s.now().UTC(),
		Seasons:   seasons,
	}, nil
}

func (s *Service) readCache() (Regulations, error) {
	if s.config.CachePath == "" {
		return Regulations{}, os.ErrNotExist
	}
	data, err := os.ReadFile(s.config.CachePath)
	if err != nil {
		return Regulations{}, err
	}
	var r Regulations
	if err := json.Unmarshal(data, &r); err != nil {
		return Regulations{}, err
	}
	if r.Species != s.config.Species {
		return Regulations{}, fmt.Errorf("cache is for %q", r.Species)
	}
	return r, nil
}

func (s *Service) writeCache(r Regulations) error {
	if s.config.CachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.config.CachePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.config.CachePath, data, 0644)
}
