package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/httputil"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// WeeklyWindowDays is how many daily closed buckets make up the weekly
// volume estimate.
const WeeklyWindowDays = 7

// Client handles communication with the warframe.market API
// ⭐ SSOT: warframe.market calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	platform   string
	topDepth   int
}

// NewClient creates a new warframe.market API client. The underlying HTTP
// client is bound to the configured request budget and platform headers, so
// every call through it blocks to stay under the budget.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	httpClient = httpClient.
		WithRateLimit(cfg.Collector.RequestsPerSec, 1).
		WithHeaders(map[string]string{
			"accept":     "application/json",
			"platform":   cfg.Market.Platform,
			"language":   cfg.Market.Language,
			"User-Agent": cfg.Market.UserAgent,
		})

	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "market"),
		baseURL:    cfg.Market.BaseURL,
		platform:   cfg.Market.Platform,
		topDepth:   cfg.Collector.TopDepth,
	}
}

// getJSON fetches a path and decodes the response body into v.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := c.httpClient.Get(ctx, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// ListItems returns the url_name of every tradable item in the catalog.
// The items payload is usually a list but some snapshots show a
// language-keyed object; both shapes are accepted.
func (c *Client) ListItems(ctx context.Context) ([]string, error) {
	var envelope struct {
		Payload struct {
			Items json.RawMessage `json:"items"`
		} `json:"payload"`
	}

	if err := c.getJSON(ctx, "/items", &envelope); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	entries, err := decodeItemEntries(envelope.Payload.Items)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.URLName != "" {
			urls = append(urls, e.URLName)
		}
	}

	c.logger.WithField("count", len(urls)).Debug("Item catalog listed")
	return urls, nil
}

type itemEntry struct {
	URLName string `json:"url_name"`
}

func decodeItemEntries(raw json.RawMessage) ([]itemEntry, error) {
	var list []itemEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	// Language-keyed object: pick the first list-shaped value
	var byLang map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byLang); err != nil {
		return nil, fmt.Errorf("unrecognized items payload shape")
	}

	keys := make([]string, 0, len(byLang))
	for k := range byLang {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := json.Unmarshal(byLang[k], &list); err == nil {
			return list, nil
		}
	}

	return nil, fmt.Errorf("unrecognized items payload shape")
}

// FetchOrders returns the raw order list for one item.
func (c *Client) FetchOrders(ctx context.Context, itemURL string) ([]Order, error) {
	var envelope struct {
		Payload struct {
			Orders []Order `json:"orders"`
		} `json:"payload"`
	}

	if err := c.getJSON(ctx, "/items/"+itemURL+"/orders", &envelope); err != nil {
		return nil, fmt.Errorf("fetch orders for %s: %w", itemURL, err)
	}

	return envelope.Payload.Orders, nil
}

// SnapshotOrders polls one item's order book and reduces it to a single
// top-of-book observation stamped at poll time.
func (c *Client) SnapshotOrders(ctx context.Context, itemURL string) (OrderSnapshot, error) {
	orders, err := c.FetchOrders(ctx, itemURL)
	if err != nil {
		return OrderSnapshot{}, err
	}

	snap := Snapshot(itemURL, c.platform, time.Now().UTC(), orders, c.topDepth)

	c.logger.WithFields(map[string]interface{}{
		"item_url":   itemURL,
		"buy_count":  snap.BuyCount,
		"sell_count": snap.SellCount,
	}).Debug("Order book snapshot taken")

	return snap, nil
}

// FetchStatistics returns the closed statistics series for one item.
func (c *Client) FetchStatistics(ctx context.Context, itemURL string) (Statistics, error) {
	var envelope struct {
		Payload struct {
			StatisticsClosed struct {
				Days90  []StatsBucket `json:"90days"`
				Hours48 []StatsBucket `json:"48hours"`
			} `json:"statistics_closed"`
		} `json:"payload"`
	}

	if err := c.getJSON(ctx, "/items/"+itemURL+"/statistics", &envelope); err != nil {
		return Statistics{}, fmt.Errorf("fetch statistics for %s: %w", itemURL, err)
	}

	return Statistics{
		Days90:  envelope.Payload.StatisticsClosed.Days90,
		Hours48: envelope.Payload.StatisticsClosed.Hours48,
	}, nil
}

// WeeklyVolume sums trade volume over the most recent WeeklyWindowDays
// daily buckets of the 90-day series.
func (c *Client) WeeklyVolume(ctx context.Context, itemURL string) (int, error) {
	stats, err := c.FetchStatistics(ctx, itemURL)
	if err != nil {
		return 0, err
	}
	return SumRecentVolume(stats.Days90, WeeklyWindowDays), nil
}

// SumRecentVolume sums the volume of the latest n buckets by datetime.
// Buckets with unparseable datetimes sort last.
func SumRecentVolume(buckets []StatsBucket, n int) int {
	sorted := make([]StatsBucket, len(buckets))
	copy(sorted, buckets)

	sort.SliceStable(sorted, func(i, j int) bool {
		return parseBucketTime(sorted[i].Datetime).After(parseBucketTime(sorted[j].Datetime))
	})

	if n > len(sorted) {
		n = len(sorted)
	}

	total := 0
	for _, b := range sorted[:n] {
		total += int(b.Volume)
	}
	return total
}

func parseBucketTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FetchSetComponents returns the parts required to build a set, excluding
// the set root node itself. Quantities default to 1 when upstream omits
// them.
func (c *Client) FetchSetComponents(ctx context.Context, setURL string) ([]SetPart, error) {
	var envelope struct {
		Payload struct {
			Item struct {
				ItemsInSet []struct {
					URLName        string `json:"url_name"`
					SetRoot        bool   `json:"set_root"`
					QuantityForSet int    `json:"quantity_for_set"`
				} `json:"items_in_set"`
			} `json:"item"`
		} `json:"payload"`
	}

	if err := c.getJSON(ctx, "/items/"+setURL, &envelope); err != nil {
		return nil, fmt.Errorf("fetch set components for %s: %w", setURL, err)
	}

	var parts []SetPart
	for _, node := range envelope.Payload.Item.ItemsInSet {
		if node.SetRoot || node.URLName == "" {
			continue
		}
		qty := node.QuantityForSet
		if qty < 1 {
			qty = 1
		}
		parts = append(parts, SetPart{
			SetURL:   setURL,
			PartURL:  node.URLName,
			Quantity: qty,
		})
	}

	return parts, nil
}

// IsSetURL reports whether an item slug names a craftable set.
func IsSetURL(url string) bool {
	return strings.HasSuffix(url, "_set")
}
