package csvio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"

	"wp-bulkpost/internal/core/publish"
)

const sample = "category;name;description;asset_path;target_link\n" +
	`2;"Brush Pack";"Great brushes";"/img/a.png";"https://x.com/p"` + "\n" +
	`3;"No Image";"skipped";"";"https://x.com/q"` + "\n" +
	`4;"Quoted";"d";"  '/img/b.png'  ";"https://x.com/r"` + "\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(InputPath(base), []byte(content), 0o600))
	return base
}

func TestReadItemsAppliesReferralAndDropsEmptyAssets(t *testing.T) {
	base := writeInput(t, "actions", sample)

	items, err := ReadItems(base, ReadOptions{AffiliateID: "10179364"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, publish.Item{
		Category:    "2",
		Name:        "Brush Pack",
		Description: "Great brushes",
		AssetPath:   "/img/a.png",
		TargetLink:  "https://x.com/pref/10179364/?campaign=actions",
	}, items[0])
	assert.Equal(t, "/img/b.png", items[1].AssetPath)
	assert.Equal(t, "4", items[1].Category)
}

func TestReadItemsMissingFile(t *testing.T) {
	_, err := ReadItems(filepath.Join(t.TempDir(), "absent"), ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseItemsHeaderOnly(t *testing.T) {
	items, err := ParseItems(strings.NewReader("category;name;description;asset_path;target_link\n"), "")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = ParseItems(strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseItemsWrongColumnCount(t *testing.T) {
	in := "h;h;h;h;h\n1;a;b;/img/a.png;https://x\n1;a;/img/a.png\n"
	_, err := ParseItems(strings.NewReader(in), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParseItemsReplacesInvalidBytes(t *testing.T) {
	in := "h;h;h;h;h\n1;Bad\xffName;caf\xc3\xa9;/img/a.png;https://x\n"
	items, err := ParseItems(strings.NewReader(in), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bad Name", items[0].Name)
	assert.Equal(t, "café", items[0].Description)
}

func TestSanitizer(t *testing.T) {
	cases := map[string]string{
		"plain":                "plain",
		"a\xffb":               "a b",
		"\xff\xfe":             "  ",
		"ok \xe2\x82\xac":      "ok €",
		"trunc \xe2\x82":       "trunc   ",
		"\xc3\xa9\x80\xc3\xa9": "é é",
	}
	for in, want := range cases {
		got, _, err := transform.String(Sanitizer(), in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, want, SanitizeString(in))
	}
}

func TestWriteResultsWritesHeaderAndRows(t *testing.T) {
	base := filepath.Join(t.TempDir(), "actions")
	results := []publish.Result{{
		Item: publish.Item{
			Category:    "2",
			Name:        "Brush Pack",
			Description: "Great brushes",
			AssetPath:   "/img/a.png",
			TargetLink:  "https://x.com/pref/10179364/?campaign=actions",
		},
		EntryURL: "https://shop.example.com/?p=7",
	}}

	path, err := WriteResults(base, results)
	require.NoError(t, err)
	assert.Equal(t, base+"_posted.csv", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"category;name;description;asset_path;entry_url;target_link\n"+
			"2;Brush Pack;Great brushes;/img/a.png;https://shop.example.com/?p=7;https://x.com/pref/10179364/?campaign=actions\n",
		string(data))
}

func TestWriteResultsOverwritesAndKeepsHeaderWhenEmpty(t *testing.T) {
	base := filepath.Join(t.TempDir(), "actions")
	require.NoError(t, os.WriteFile(OutputPath(base), []byte("stale content that is longer than a header\n"), 0o600))

	path, err := WriteResults(base, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "category;name;description;asset_path;entry_url;target_link\n", string(data))
}

func TestEncodeResultsQuotesDelimiter(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeResults(&buf, []publish.Result{{Item: publish.Item{Name: "a;b"}}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `;"a;b";`)
}
