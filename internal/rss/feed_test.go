package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeedXML = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <item>
      <title>The.Matrix.1999.1080p-GROUP</title>
      <link>magnet:?xt=urn:btih:abc</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <size>1500000000</size>
      <seeders>42</seeders>
      <leechers>3</leechers>
    </item>
    <item>
      <title>Another.Show.S01E01.720p</title>
      <link>magnet:?xt=urn:btih:def</link>
      <pubDate>Mon, 02 Jan 2006 16:00:00 -0700</pubDate>
    </item>
  </channel>
</rss>`

func TestFetchParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleFeedXML))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	items, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	first := items[0]
	if first.Title != "The.Matrix.1999.1080p-GROUP" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Size != 1500000000 {
		t.Errorf("Size = %d, want 1500000000", first.Size)
	}
	if first.Seeders != 42 || first.Leechers != 3 {
		t.Errorf("Seeders/Leechers = %d/%d, want 42/3", first.Seeders, first.Leechers)
	}
	if first.PubDate.IsZero() {
		t.Error("expected PubDate to parse")
	}

	second := items[1]
	if second.Seeders != 0 {
		t.Errorf("expected missing seeders element to default to 0, got %d", second.Seeders)
	}
}

func TestFetchRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected a 404 response to error")
	}
}

func TestParsePubDateUnknownFormatReturnsZero(t *testing.T) {
	if got := parsePubDate("not a date"); !got.IsZero() {
		t.Errorf("expected zero time for unparsable date, got %v", got)
	}
}
