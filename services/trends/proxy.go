package trends

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"trendpulse/config"
)

const proxyProbeTimeout = 5 * time.Second

// ProxyPool holds the egress proxies that passed a health probe at run
// start. Selection is sticky: Current returns the same proxy until Rotate
// advances it, so one run keeps one exit unless the provider throttles.
// An empty pool means direct egress.
type ProxyPool struct {
	proxies []*url.URL
	current int
}

// NewProxyPool parses the configured proxy list and probes each candidate
// through a short request to the probe URL. Unreachable proxies are
// dropped with a log line; an empty result falls back to direct egress.
func NewProxyPool(ctx context.Context, cfg *config.Config) *ProxyPool {
	pool := &ProxyPool{}
	for _, raw := range cfg.ProxyURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			log.Printf("[proxy] skipping unparseable proxy %q", raw)
			continue
		}
		if err := probeProxy(ctx, u, cfg.ProxyProbeURL); err != nil {
			log.Printf("[proxy] %s failed health probe: %v", u.Host, err)
			continue
		}
		log.Printf("[proxy] %s healthy", u.Host)
		pool.proxies = append(pool.proxies, u)
	}
	if len(cfg.ProxyURLs) > 0 && len(pool.proxies) == 0 {
		log.Printf("[proxy] no healthy proxies out of %d, using direct egress", len(cfg.ProxyURLs))
	}
	return pool
}

// Current returns the sticky proxy for this run, nil for direct egress.
func (p *ProxyPool) Current() *url.URL {
	if len(p.proxies) == 0 {
		return nil
	}
	return p.proxies[p.current]
}

// Rotate advances to the next healthy proxy and returns it.
func (p *ProxyPool) Rotate() *url.URL {
	if len(p.proxies) == 0 {
		return nil
	}
	p.current = (p.current + 1) % len(p.proxies)
	log.Printf("[proxy] rotated to %s", p.proxies[p.current].Host)
	return p.proxies[p.current]
}

func (p *ProxyPool) Size() int { return len(p.proxies) }

func probeProxy(ctx context.Context, proxyURL *url.URL, probeURL string) error {
	if probeURL == "" {
		return nil
	}
	client := &http.Client{
		Timeout:   proxyProbeTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	req, err := http.NewRequestWithContext(ctx, "GET", probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
