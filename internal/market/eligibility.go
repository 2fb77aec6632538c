package market

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EligibleItem is one item that cleared the weekly volume threshold,
// together with the volume estimate that cleared it. The estimate is
// stamped onto order book snapshots so the daily statistics pass does not
// have to be repeated every poll cycle.
type EligibleItem struct {
	URL          string `json:"url"`
	WeeklyVolume int    `json:"weekly_volume"`
}

// Eligibility is the persisted output of the daily eligibility pass.
type Eligibility struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Count     int            `json:"count"`
	Items     []EligibleItem `json:"items"`
}

// EligibilityPath returns the canonical location of the eligibility state
// under the data directory.
func EligibilityPath(dataDir string) string {
	return filepath.Join(dataDir, "eligibility", "eligible.json")
}

// URLs returns the eligible item slugs in stored order.
func (e *Eligibility) URLs() []string {
	urls := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		urls = append(urls, it.URL)
	}
	return urls
}

// WeeklyVolumeFor returns the stored weekly volume estimate for an item,
// or ok=false when the item is not in the list.
func (e *Eligibility) WeeklyVolumeFor(url string) (int, bool) {
	for _, it := range e.Items {
		if it.URL == url {
			return it.WeeklyVolume, true
		}
	}
	return 0, false
}

// Save writes the eligibility state atomically (temp file + rename).
func (e *Eligibility) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create eligibility dir: %w", err)
	}

	e.Count = len(e.Items)

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal eligibility: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write eligibility temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace eligibility file: %w", err)
	}

	return nil
}

// LoadEligibility reads the persisted eligibility state. A missing file is
// an error: the snapshot run needs the daily pass to have happened first.
func LoadEligibility(path string) (*Eligibility, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eligibility file: %w", err)
	}

	var e Eligibility
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse eligibility file: %w", err)
	}

	return &e, nil
}
