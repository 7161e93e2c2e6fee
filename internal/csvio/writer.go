package csvio

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/transform"

	"wp-bulkpost/internal/core/publish"
)

// Header is the first row of every output file.
var Header = []string{"category", "name", "description", "asset_path", "entry_url", "target_link"}

// WriteResults writes <name>_posted.csv, replacing any previous file, and
// returns the path written.
func WriteResults(name string, results []publish.Result) (string, error) {
	path := OutputPath(name)
	f, err := os.Create(path)
	if err != nil {
		return path, errors.Wrapf(err, "create output %s", path)
	}
	if err := EncodeResults(f, results); err != nil {
		_ = f.Close()
		return path, errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return path, errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}

// EncodeResults writes the header and one row per result to w.
func EncodeResults(w io.Writer, results []publish.Result) error {
	tw := transform.NewWriter(w, Sanitizer())
	cw := csv.NewWriter(tw)
	cw.Comma = Delimiter

	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, r := range results {
		row := []string{r.Category, r.Name, r.Description, r.AssetPath, r.EntryURL, r.TargetLink}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write row %q", r.Name)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush rows")
	}
	return errors.Wrap(tw.Close(), "flush encoder")
}
