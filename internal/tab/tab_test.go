package tab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "timestamp": 1718000000000,
  "tabInfos": [
    {
      "active": true, "audible": false, "autoDiscardable": true, "discarded": false,
      "favIconUrl": "https://example.com/favicon.ico", "groupId": -1, "height": 900,
      "highlighted": true, "id": 101, "incognito": false, "index": 0,
      "lastAccessed": 1717999990000.5, "mutedInfo": {"muted": false}, "pinned": false,
      "selected": true, "status": "complete", "title": "Example", "url": "https://example.com/",
      "width": 1600, "windowId": 7, "browserInnerPid": 12, "frozen": false
    },
    {
      "active": false, "audible": true, "autoDiscardable": true, "discarded": false,
      "groupId": -1, "height": 900, "highlighted": false, "id": 102, "incognito": false,
      "index": 1, "lastAccessed": 1717999000000, "mutedInfo": {"muted": true}, "pinned": true,
      "selected": false, "status": "loading", "title": "New Tab", "url": "chrome://newtab/",
      "width": 1600, "windowId": 7, "browserInnerPid": 13
    }
  ]
}`

func TestParseFullPayload(t *testing.T) {
	d, err := Parse([]byte(samplePayload))
	require.NoError(t, err)
	assert.Equal(t, 1718000000000.0, d.Timestamp)
	require.Len(t, d.TabInfos, 2)

	first := d.TabInfos[0]
	assert.True(t, first.Active)
	assert.Equal(t, uint64(101), first.ID)
	assert.Equal(t, int32(-1), first.GroupID)
	assert.Equal(t, "https://example.com/favicon.ico", first.FavIconURL)
	assert.Equal(t, 1717999990000.5, first.LastAccessed)
	assert.Equal(t, int64(12), first.BrowserInnerPID)
	assert.False(t, first.IsNewTab())

	second := d.TabInfos[1]
	assert.True(t, second.Audible)
	assert.True(t, second.MutedInfo.Muted)
	assert.Empty(t, second.FavIconURL)
	assert.True(t, second.IsNewTab())
}

func TestParseEmptyTabList(t *testing.T) {
	d, err := Parse([]byte(`{"timestamp": 42, "tabInfos": []}`))
	require.NoError(t, err)
	assert.Equal(t, 42.0, d.Timestamp)
	assert.NotNil(t, d.TabInfos)
	assert.Empty(t, d.TabInfos)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"not json":          `hello`,
		"missing timestamp": `{"tabInfos": []}`,
		"missing tabInfos":  `{"timestamp": 1}`,
		"null tabInfos":     `{"timestamp": 1, "tabInfos": null}`,
		"wrong type":        `{"timestamp": "now", "tabInfos": []}`,
		"bad tab":           `{"timestamp": 1, "tabInfos": [{"id": "x"}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse), "error should wrap ErrParse: %v", err)
		})
	}
}
