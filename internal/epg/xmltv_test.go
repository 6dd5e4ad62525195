// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/store"
)

func collect(t *testing.T, doc string, limit int64) ([]Programme, error) {
	t.Helper()
	var out []Programme
	err := Decode(strings.NewReader(doc), limit, func(p Programme) error {
		out = append(out, p)
		return nil
	})
	return out, err
}

func TestDecode_Security(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "XXE Attack",
			doc: `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE foo [
  <!ELEMENT foo ANY >
  <!ENTITY xxe SYSTEM "file:///etc/passwd" >]><tv>
  <programme start="20250301200000 +0000" stop="20250301210000 +0000" channel="ard.de">
    <title>&xxe;</title>
  </programme>
</tv>`,
		},
		{
			name: "Malformed XML",
			doc: `<tv>
  <programme start="20250301200000 +0000" channel="ard.de">
    <title>Unclosed
  </programme>
</tv>`,
		},
		{
			name: "Billion Laughs Attack (Entity Expansion)",
			doc: `<?xml version="1.0"?>
<!DOCTYPE lolz [
 <!ENTITY lol "lol">
 <!ENTITY lol1 "&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;">
]>
<tv>
 <programme start="20250301200000" channel="x"><title>&lol1;</title></programme>
</tv>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.doc, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "decode xmltv")
		})
	}
}

func TestDecode_SizeLimit(t *testing.T) {
	doc := `<tv>` + strings.Repeat(`<programme start="20250301200000" channel="x"><title>t</title></programme>`, 50) + `</tv>`

	_, err := collect(t, doc, 256)
	require.ErrorIs(t, err, ErrTooLarge)

	got, err := collect(t, doc, int64(len(doc)))
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestDecode_MissingRoot(t *testing.T) {
	_, err := collect(t, `<?xml version="1.0"?><listing/>`, 0)
	require.ErrorIs(t, err, ErrNoTV)
}

func TestDecode_Latin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><tv>" +
		"<programme start=\"20250301200000\" channel=\"x\"><title>M\xfcnchen</title></programme></tv>"
	got, err := collect(t, doc, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "München", first(got[0].Titles))
}

func TestDecode_FullProgramme(t *testing.T) {
	doc := `<tv generator-info-name="tvm">
  <channel id="ard.de"><display-name>Das Erste</display-name></channel>
  <programme start="20250301201500 +0100" stop="20250301214500 +0100" channel="ard.de">
    <title lang="de">Tatort</title>
    <title lang="en">Crime Scene</title>
    <sub-title>Das Opfer</sub-title>
    <desc lang="de">Kommissare ermitteln.</desc>
    <credits><director>Max Muster</director><actor>A One</actor><actor> B Two </actor></credits>
    <date>2024</date>
    <category>Krimi</category><category>Serie</category>
    <country>DE</country>
    <episode-num system="xmltv_ns">0.11.</episode-num>
    <episode-num system="crid">crid://ard.de/tatort/1234</episode-num>
    <review type="text">Spannend</review>
  </programme>
</tv>`
	got, err := collect(t, doc, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, "ard.de", p.Channel)
	assert.Len(t, p.Titles, 2)
	assert.Equal(t, "Das Opfer", first(p.SubTitles))
	assert.Equal(t, "Krimi, Serie", joinTexts(p.Categories))
	require.NotNil(t, p.Credits)
	assert.Equal(t, []string{"A One", " B Two "}, p.Credits.Actors)

	ep := parseEpisode(p.EpisodeNum)
	assert.Equal(t, Episode{Season: 1, Episode: 12, XRef: "crid://ard.de/tatort/1234"}, ep)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"20250301201500 +0100", time.Date(2025, 3, 1, 19, 15, 0, 0, time.UTC), true},
		{"20250301201500", time.Date(2025, 3, 1, 20, 15, 0, 0, time.UTC), true},
		{"202503012015 -0030", time.Date(2025, 3, 1, 20, 45, 0, 0, time.UTC), true},
		{"20250301", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseEpisode(t *testing.T) {
	tests := []struct {
		name string
		nums []EpisodeNum
		want Episode
	}{
		{"xmltv_ns", []EpisodeNum{{System: "xmltv_ns", Value: "2.4/10.0/1"}}, Episode{Season: 3, Episode: 5}},
		{"ns without season", []EpisodeNum{{System: "xmltv_ns", Value: ".7."}}, Episode{Episode: 8}},
		{"onscreen", []EpisodeNum{{System: "onscreen", Value: "S02E07"}}, Episode{Season: 2, Episode: 7}},
		{"ns wins", []EpisodeNum{
			{System: "onscreen", Value: "S09E09"},
			{System: "xmltv_ns", Value: "0.0."},
		}, Episode{Season: 1, Episode: 1}},
		{"dd_progid", []EpisodeNum{{System: "dd_progid", Value: "EP0123.0045"}}, Episode{XRef: "EP0123.0045"}},
		{"garbage", []EpisodeNum{{System: "xmltv_ns", Value: "x.y"}}, Episode{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEpisode(tt.nums))
		})
	}
}

func TestDescribedExtras(t *testing.T) {
	x := describedExtras("Spielfilm, USA 1994. Regie: Robert Zemeckis. Darsteller: Tom Hanks (Forrest), Robin Wright")
	assert.Equal(t, store.Extras{
		store.ExtraCountry: "USA",
		store.ExtraDate:    "1994",
		"director":         "Robert Zemeckis",
		"actor":            "Tom Hanks, Robin Wright",
	}, x)
}

func TestMergeDescribed_KeepsStructuredValues(t *testing.T) {
	x := store.Extras{store.ExtraDate: "2001", "actor": "Jodie Foster"}
	mergeDescribed(x, store.Extras{store.ExtraCountry: "USA", store.ExtraDate: "1994", "actor": "Tom Hanks", "director": "Robert Zemeckis"})
	assert.Equal(t, store.Extras{store.ExtraDate: "2001", "actor": "Jodie Foster", "director": "Robert Zemeckis"}, x)
}
