package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

var monthDirPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Store owns the monthly raw partitions under the data directory
// ⭐ SSOT: partition rotation and dedup happen in this type only
//
// Each partition kind lives at data/YYYY-MM/<prefix>_YYYY-MM.csv with a
// <prefix>_YYYY-MM_old.csv rollback next to it. A stored row is
// authoritative: re-offered duplicates are dropped, not overwritten.
type Store struct {
	dataDir string
	logger  *logger.Logger
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string, log *logger.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		logger:  log.WithField("module", "snapshot"),
	}
}

// RotationResult tallies one partition rotation.
type RotationResult struct {
	Partition         string // primary partition path
	RowsPrior         int    // rows carried forward from the previous file
	RowsNew           int    // rows offered by this cycle
	RowsWritten       int
	DuplicatesDropped int
	MalformedSkipped  int  // prior rows dropped as unparseable
	Recovered         bool // prior rows were read from the rollback file
	RollbackAvailable bool // a rollback file exists after the write
}

// LoadResult tallies one bulk load across partitions.
type LoadResult struct {
	Files            int
	Rows             int
	MalformedSkipped int
}

// Record merges one poll cycle of observations into the monthly
// orderbook partitions. Observations land in the partition of their
// timestamp's month; a cycle that crosses midnight on the month
// boundary touches two partitions.
func (s *Store) Record(observations []market.OrderSnapshot) ([]RotationResult, error) {
	if len(observations) == 0 {
		return nil, nil
	}

	byMonth := make(map[string][]market.OrderSnapshot)
	for _, o := range observations {
		month := o.Timestamp.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], o)
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	results := make([]RotationResult, 0, len(months))
	for _, month := range months {
		obs := byMonth[month]

		records := make([][]string, 0, len(obs))
		keys := make([]string, 0, len(obs))
		for _, o := range obs {
			records = append(records, encodeObservation(o))
			keys = append(keys, obsKey(o))
		}

		res, err := s.rotatePartition(orderbookPrefix, month, orderbookHeader, reencodeObservation, records, keys)
		if err != nil {
			return results, fmt.Errorf("record orderbook %s: %w", month, err)
		}
		s.logRotation("orderbook", res)
		results = append(results, res)
	}

	return results, nil
}

// RecordComponents merges catalog component rows into the current
// month's partition, keyed (set_url, part_url).
func (s *Store) RecordComponents(components []catalog.Component) (RotationResult, error) {
	month := time.Now().UTC().Format("2006-01")

	records := make([][]string, 0, len(components))
	keys := make([]string, 0, len(components))
	for _, c := range components {
		records = append(records, encodeComponent(c))
		keys = append(keys, c.SetURL+"|"+c.PartURL)
	}

	res, err := s.rotatePartition(componentsPrefix, month, componentsHeader, reencodeComponent, records, keys)
	if err != nil {
		return res, fmt.Errorf("record set components %s: %w", month, err)
	}
	s.logRotation("set_components", res)
	return res, nil
}

// RecordStats merges 48-hour statistics buckets into the current
// month's partition, keyed (item_url, ts_bucket, platform).
func (s *Store) RecordStats(rows []StatsRow) (RotationResult, error) {
	month := time.Now().UTC().Format("2006-01")

	records := make([][]string, 0, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, encodeStatsRow(r))
		keys = append(keys, r.ItemURL+"|"+r.TsBucket+"|"+r.Platform)
	}

	res, err := s.rotatePartition(statsPrefix, month, statsHeader, reencodeStatsRow, records, keys)
	if err != nil {
		return res, fmt.Errorf("record stats48h %s: %w", month, err)
	}
	s.logRotation("stats48h", res)
	return res, nil
}

// LoadAll reads every orderbook partition under the data dir, skipping
// rollback files. Malformed rows are skipped and counted, an unreadable
// file aborts the load.
func (s *Store) LoadAll() ([]market.OrderSnapshot, LoadResult, error) {
	var out []market.OrderSnapshot
	res := LoadResult{}

	err := s.loadPartitions(orderbookPrefix, func(idx headerIndex, record []string) error {
		o, err := decodeObservation(idx, record)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	}, &res)
	if err != nil {
		return nil, res, err
	}

	s.logger.WithFields(map[string]interface{}{
		"files":     res.Files,
		"rows":      res.Rows,
		"malformed": res.MalformedSkipped,
	}).Info("Loaded orderbook partitions")

	return out, res, nil
}

// LoadComponents reads every component partition under the data dir.
func (s *Store) LoadComponents() ([]catalog.Component, LoadResult, error) {
	var out []catalog.Component
	res := LoadResult{}

	err := s.loadPartitions(componentsPrefix, func(idx headerIndex, record []string) error {
		c, err := decodeComponent(idx, record)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}, &res)
	if err != nil {
		return nil, res, err
	}

	s.logger.WithFields(map[string]interface{}{
		"files":     res.Files,
		"rows":      res.Rows,
		"malformed": res.MalformedSkipped,
	}).Info("Loaded component partitions")

	return out, res, nil
}

// Months lists the partition months present under the data dir.
func (s *Store) Months() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var months []string
	for _, e := range entries {
		if e.IsDir() && monthDirPattern.MatchString(e.Name()) {
			months = append(months, e.Name())
		}
	}
	sort.Strings(months)
	return months, nil
}

func (s *Store) partitionPaths(prefix, month string) (dir, primary, rollback string) {
	dir = filepath.Join(s.dataDir, month)
	primary = filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, month))
	rollback = filepath.Join(dir, fmt.Sprintf("%s_%s_old.csv", prefix, month))
	return dir, primary, rollback
}

// reencode functions normalize a prior-partition row back into canonical
// record form plus its dedup key.
func reencodeObservation(idx headerIndex, record []string) ([]string, string, error) {
	o, err := decodeObservation(idx, record)
	if err != nil {
		return nil, "", err
	}
	return encodeObservation(o), obsKey(o), nil
}

func reencodeComponent(idx headerIndex, record []string) ([]string, string, error) {
	c, err := decodeComponent(idx, record)
	if err != nil {
		return nil, "", err
	}
	return encodeComponent(c), c.SetURL + "|" + c.PartURL, nil
}

func reencodeStatsRow(idx headerIndex, record []string) ([]string, string, error) {
	r, err := decodeStatsRow(idx, record)
	if err != nil {
		return nil, "", err
	}
	return encodeStatsRow(r), r.ItemURL + "|" + r.TsBucket + "|" + r.Platform, nil
}

func obsKey(o market.OrderSnapshot) string {
	return o.ItemURL + "|" + o.Timestamp.UTC().Format(time.RFC3339) + "|" + o.Platform
}

// rotatePartition runs the rotation dance for one partition:
//
//  1. locate prior rows: the primary file, or the rollback file when the
//     primary is missing after an interrupted run
//  2. rotate the primary aside (remove the stale rollback first)
//  3. merge prior and new rows, first write wins per key
//  4. write to <primary>.tmp, fsync, rename over the primary
//
// The rollback file is only removed while a newer primary exists, so a
// failure at any step leaves a complete recovery point on disk.
func (s *Store) rotatePartition(prefix, month string, header []string, reencode func(headerIndex, []string) ([]string, string, error), newRecords [][]string, newKeys []string) (RotationResult, error) {
	dir, primary, rollback := s.partitionPaths(prefix, month)
	res := RotationResult{Partition: primary, RowsNew: len(newRecords)}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create partition dir: %w", err)
	}

	source := primary
	if _, err := os.Stat(primary); err != nil {
		if !os.IsNotExist(err) {
			return res, fmt.Errorf("stat partition: %w", err)
		}
		source = ""
		if _, err := os.Stat(rollback); err == nil {
			source = rollback
			res.Recovered = true
		}
	}

	var priorRecords [][]string
	var priorKeys []string
	if source != "" {
		fileHeader, records, parseSkipped, err := readRecords(source)
		if err != nil {
			return res, err
		}
		res.MalformedSkipped += parseSkipped

		idx := indexHeader(fileHeader)
		for _, record := range records {
			canonical, key, err := reencode(idx, record)
			if err != nil {
				res.MalformedSkipped++
				s.logger.WithError(err).WithField("partition", source).Debug("Skipping malformed row")
				continue
			}
			priorRecords = append(priorRecords, canonical)
			priorKeys = append(priorKeys, key)
		}
	}
	res.RowsPrior = len(priorRecords)

	if source == primary {
		if err := os.Remove(rollback); err != nil && !os.IsNotExist(err) {
			return res, fmt.Errorf("remove stale rollback: %w", err)
		}
		if err := os.Rename(primary, rollback); err != nil {
			return res, fmt.Errorf("rotate partition: %w", err)
		}
	}
	if _, err := os.Stat(rollback); err == nil {
		res.RollbackAvailable = true
	}

	// First write wins: a stored row is authoritative, a re-offered
	// duplicate is dropped.
	seen := make(map[string]bool, len(priorRecords)+len(newRecords))
	merged := make([][]string, 0, len(priorRecords)+len(newRecords))
	for i, record := range priorRecords {
		if seen[priorKeys[i]] {
			res.DuplicatesDropped++
			continue
		}
		seen[priorKeys[i]] = true
		merged = append(merged, record)
	}
	for i, record := range newRecords {
		if seen[newKeys[i]] {
			res.DuplicatesDropped++
			continue
		}
		seen[newKeys[i]] = true
		merged = append(merged, record)
	}
	res.RowsWritten = len(merged)

	if err := writeAtomicCSV(primary, header, merged); err != nil {
		return res, err
	}

	return res, nil
}

func (s *Store) loadPartitions(prefix string, row func(headerIndex, []string) error, res *LoadResult) error {
	pattern := filepath.Join(s.dataDir, "*", prefix+"_*.csv")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob partitions: %w", err)
	}

	for _, path := range files {
		if strings.HasSuffix(path, "_old.csv") {
			continue
		}

		header, records, parseSkipped, err := readRecords(path)
		if err != nil {
			return err
		}
		res.Files++
		res.MalformedSkipped += parseSkipped

		idx := indexHeader(header)
		for _, record := range records {
			if err := row(idx, record); err != nil {
				res.MalformedSkipped++
				s.logger.WithError(err).WithField("partition", path).Debug("Skipping malformed row")
				continue
			}
			res.Rows++
		}
	}

	return nil
}

// readRecords reads a partition file. The first row is the header.
// Rows with CSV syntax errors are skipped and counted; an IO error
// aborts.
func readRecords(path string) (header []string, records [][]string, parseSkipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open partition %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				parseSkipped++
				continue
			}
			return header, records, parseSkipped, fmt.Errorf("read partition %s: %w", path, err)
		}

		if header == nil {
			header = record
			continue
		}
		records = append(records, record)
	}

	return header, records, parseSkipped, nil
}

// writeAtomicCSV writes header+records to path via a temp file, fsync
// and rename, so a reader never observes a partial partition.
func writeAtomicCSV(path string, header []string, records [][]string) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp partition: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write header: %w", err)
	}
	// WriteAll flushes and surfaces the first write error.
	if err := w.WriteAll(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write rows: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync partition: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close partition: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename partition: %w", err)
	}
	return nil
}

func (s *Store) logRotation(kind string, res RotationResult) {
	log := s.logger.WithFields(map[string]interface{}{
		"kind":       kind,
		"partition":  res.Partition,
		"rows_prior": res.RowsPrior,
		"rows_new":   res.RowsNew,
		"written":    res.RowsWritten,
		"duplicates": res.DuplicatesDropped,
	})

	if res.Recovered {
		log.Warn("Recovered partition from rollback file")
	}
	if res.MalformedSkipped > 0 {
		log.WithField("malformed", res.MalformedSkipped).Warn("Skipped malformed rows during rotation")
	}
	log.Info("Partition rotated")
}
