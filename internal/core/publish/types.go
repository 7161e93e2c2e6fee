package publish

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrEntryNotCreated is returned by CreateEntry once its attempts are used up.
	ErrEntryNotCreated = errors.New("entry not created")
	// ErrItemDropped is returned by ProcessItem when the item never published.
	ErrItemDropped = errors.New("item dropped")
	// ErrUploadExhausted is returned by UploadAsset when a positive bound is set and reached.
	ErrUploadExhausted = errors.New("asset upload attempts exhausted")
)

// Item is one input row after parsing.
type Item struct {
	Category    string
	Name        string
	Description string
	AssetPath   string
	TargetLink  string
}

// Result is an item that was fully published.
type Result struct {
	Item
	EntryURL string
}
