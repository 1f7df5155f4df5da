package referrers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidemark/internal/pkg/referrers"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		name     string
		referrer string
		want     string
	}{
		{"https url", "https://google.com/search?q=x", "google.com"},
		{"host is lowercased", "https://News.Ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"port is kept", "http://localhost:3000/page", "localhost:3000"},
		{"no scheme falls back to input", "example.com/path", "example.com/path"},
		{"unparseable falls back to input", "not a url", "not a url"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, referrers.Domain(tt.referrer))
		})
	}
}
