// Package tab holds the tab snapshot payload sent by the browser extension.
package tab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NewTabTitle is the placeholder title of an empty tab. Its lastAccessed value is not meaningful.
const NewTabTitle = "New Tab"

// ErrParse marks a payload the extension sent that could not be understood.
var ErrParse = errors.New("invalid tab data")

// Data is one snapshot of every open tab.
// Timestamp is the extension clock (Date.now(), epoch milliseconds).
type Data struct {
	Timestamp float64 `json:"timestamp"`
	TabInfos  []Info  `json:"tabInfos"`
}

// Info mirrors chrome.tabs.Tab plus the renderer id the extension attaches.
type Info struct {
	Active          bool      `json:"active"`
	Audible         bool      `json:"audible"`
	AutoDiscardable bool      `json:"autoDiscardable"`
	Discarded       bool      `json:"discarded"`
	FavIconURL      string    `json:"favIconUrl,omitempty"`
	GroupID         int32     `json:"groupId"`
	Height          uint32    `json:"height"`
	Highlighted     bool      `json:"highlighted"`
	ID              uint64    `json:"id"`
	Incognito       bool      `json:"incognito"`
	Index           uint32    `json:"index"`
	LastAccessed    float64   `json:"lastAccessed"`
	MutedInfo       MutedInfo `json:"mutedInfo"`
	Pinned          bool      `json:"pinned"`
	Selected        bool      `json:"selected"`
	Status          string    `json:"status"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Width           uint32    `json:"width"`
	WindowID        uint64    `json:"windowId"`
	// BrowserInnerPID is the browser's own process id for the tab, the value
	// that appears as --renderer-client-id on the renderer's command line.
	BrowserInnerPID int64 `json:"browserInnerPid"`
}

type MutedInfo struct {
	Muted bool `json:"muted"`
}

// IsNewTab reports whether the tab is the empty placeholder tab.
func (i Info) IsNewTab() bool { return i.Title == NewTabTitle }

type wireData struct {
	Timestamp *float64 `json:"timestamp"`
	TabInfos  *[]Info  `json:"tabInfos"`
}

// Parse decodes a text frame from the extension. Both timestamp and tabInfos are required;
// unknown tab fields are ignored so newer browsers keep working.
func Parse(b []byte) (Data, error) {
	var w wireData
	if err := json.Unmarshal(b, &w); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if w.Timestamp == nil {
		return Data{}, fmt.Errorf("%w: missing field timestamp", ErrParse)
	}
	if w.TabInfos == nil {
		return Data{}, fmt.Errorf("%w: missing field tabInfos", ErrParse)
	}
	return Data{Timestamp: *w.Timestamp, TabInfos: *w.TabInfos}, nil
}
