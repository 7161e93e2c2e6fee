package csvio

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/transform"

	"wp-bulkpost/internal/core/publish"
)

const (
	Delimiter = ';'

	inputColumns = 5
)

// ReadOptions controls the per-row transform.
type ReadOptions struct {
	AffiliateID string
}

// InputPath returns the file ReadItems opens for name.
func InputPath(name string) string { return name + ".csv" }

// OutputPath returns the file WriteResults writes for name.
func OutputPath(name string) string { return name + "_posted.csv" }

// ReferralSuffix is appended verbatim to each row's target link.
func ReferralSuffix(affiliateID, name string) string {
	return "ref/" + affiliateID + "/?campaign=" + filepath.Base(name)
}

// ReadItems parses <name>.csv. The header row is skipped and rows whose
// asset path is empty after trimming are left out. File order is kept.
func ReadItems(name string, opts ReadOptions) ([]publish.Item, error) {
	path := InputPath(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input %s", path)
	}
	defer f.Close()

	items, err := ParseItems(f, ReferralSuffix(opts.AffiliateID, name))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return items, nil
}

// ParseItems reads rows from r and appends suffix to every target link.
func ParseItems(r io.Reader, suffix string) ([]publish.Item, error) {
	cr := csv.NewReader(transform.NewReader(r, Sanitizer()))
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read header")
	}

	var items []publish.Item
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		if len(row) != inputColumns {
			line, _ := cr.FieldPos(0)
			return nil, errors.Newf("line %d: expected %d columns, got %d", line, inputColumns, len(row))
		}
		asset := strings.Trim(strings.TrimSpace(row[3]), `"'`)
		if asset == "" {
			continue
		}
		items = append(items, publish.Item{
			Category:    row[0],
			Name:        row[1],
			Description: row[2],
			AssetPath:   asset,
			TargetLink:  row[4] + suffix,
		})
	}
	return items, nil
}
