package extract

import (
	"slices"
	"testing"
)

func TestExtractorExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "filters gstatic hosts",
			body: `<img src="https://x.com/a.jpg"><img src="https://gstatic.com/b.png">`,
			want: []string{"https://x.com/a.jpg"},
		},
		{
			name: "keeps order and duplicates",
			body: `"https://b.org/2.png" "https://a.org/1.gif" "https://b.org/2.png"`,
			want: []string{"https://b.org/2.png", "https://a.org/1.gif", "https://b.org/2.png"},
		},
		{
			name: "all extensions",
			body: "https://h.io/a.jpg https://h.io/b.jpeg https://h.io/c.png https://h.io/d.svg https://h.io/e.gif https://h.io/f.tiff",
			want: []string{
				"https://h.io/a.jpg", "https://h.io/b.jpeg", "https://h.io/c.png",
				"https://h.io/d.svg", "https://h.io/e.gif", "https://h.io/f.tiff",
			},
		},
		{
			name: "extensions are case-sensitive",
			body: "https://h.io/a.JPG https://h.io/b.Png",
			want: []string{},
		},
		{
			name: "plain http is ignored",
			body: "http://h.io/a.jpg",
			want: []string{},
		},
		{
			name: "query string ends the match",
			body: "https://h.io/a.jpg?w=200",
			want: []string{"https://h.io/a.jpg"},
		},
		{
			name: "no match without extension",
			body: "https://h.io/image https://h.io/",
			want: []string{},
		},
		{
			name: "empty body",
			body: "",
			want: []string{},
		},
		{
			name: "escaped JSON in scripts",
			body: `["https://cdn.example.net/photos/2020/cat_01.jpeg",null]`,
			want: []string{"https://cdn.example.net/photos/2020/cat_01.jpeg"},
		},
		{
			name: "encrypted-tbn gstatic thumbnails",
			body: "https://encrypted-tbn0.gstatic.com/images.jpg https://site.com/real.png",
			want: []string{"https://site.com/real.png"},
		},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := e.Extract(tt.body)
			if got == nil {
				t.Fatal("Extract must not return nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractorIsBlocked(t *testing.T) {
	t.Parallel()

	t.Run("only the host is checked", func(t *testing.T) {
		t.Parallel()
		e := New()
		if e.IsBlocked("https://example.com/gstatic/a.jpg") {
			t.Error("path containing gstatic must not be blocked")
		}
		if !e.IsBlocked("https://www.gstatic.com/a.jpg") {
			t.Error("gstatic host must be blocked")
		}
	})

	t.Run("custom blocked hosts", func(t *testing.T) {
		t.Parallel()
		e := New(WithBlockedHosts([]string{"thumbs", ""}))
		if !e.IsBlocked("https://thumbs.example.com/a.jpg") {
			t.Error("expected thumbs host to be blocked")
		}
		if e.IsBlocked("https://gstatic.com/a.jpg") {
			t.Error("gstatic is no longer blocked")
		}
	})

	t.Run("no blocked hosts", func(t *testing.T) {
		t.Parallel()
		e := New(WithBlockedHosts(nil))
		got := e.Extract("https://gstatic.com/a.jpg")
		if len(got) != 1 {
			t.Errorf("expected 1 candidate, got %v", got)
		}
	})
}
