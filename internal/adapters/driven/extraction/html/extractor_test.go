package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

func TestSupports(t *testing.T) {
	extractor := New()

	assert.True(t, extractor.Supports("text/html"))
	assert.True(t, extractor.Supports("text/html; charset=utf-8"))
	assert.True(t, extractor.Supports("application/XHTML+xml"))
	assert.False(t, extractor.Supports("text/plain"))
}

func TestExtract_StripsMarkup(t *testing.T) {
	page := `<html><head><title>Quarterly &amp; Annual</title><style>p{color:red}</style></head>
<body>
<!-- navigation -->
<script>alert("x")</script>
<h1>Costs</h1>
<p>Cloud   migration <b>cut</b> costs.</p>
<ul><li>Compute</li><li>Storage</li></ul>
Line one<br/>Line two
</body></html>`

	ext, err := New().Extract(context.Background(), []byte(page), "text/html")
	require.NoError(t, err)

	assert.Equal(t, "Quarterly & Annual\n\nCosts\nCloud migration cut costs.\nCompute\nStorage\nLine one\nLine two", ext.FullText)
	assert.Equal(t, 1, ext.PageCount)
	assert.NotContains(t, ext.FullText, "alert")
	assert.NotContains(t, ext.FullText, "color")
}

func TestExtract_WithoutTitle(t *testing.T) {
	ext, err := New().Extract(context.Background(), []byte("<p>Just a paragraph.</p>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, "Just a paragraph.", ext.FullText)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"invalid utf8", []byte{0xff, 0xfe, '<'}, "not valid UTF-8"},
		{"only scripts", []byte("<script>var x = 1;</script><!-- -->"), "no visible text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := New().Extract(context.Background(), tt.data, "text/html")
			require.Error(t, err)
			assert.Nil(t, ext)
			assert.ErrorIs(t, err, domain.ErrExtractionFailed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"entities", "<p>Fish &amp; chips &lt;3</p>", "Fish & chips <3"},
		{"pre is a block", "<pre>code</pre>after", "code\nafter"},
		{"inline tags join", "<span>a</span><em>b</em>", "ab"},
		{"blank lines dropped", "<div>\n\n  one \n\n</div><div>two</div>", "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}
