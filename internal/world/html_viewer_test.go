package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `<html><head><title>T</title><style>body{color:red}</style></head>
<body><h2>Intro</h2><p>Hello world</p><ul><li>one</li><li>two</li></ul>
<pre><code>x := 1</code></pre><script>alert(1)</script></body></html>`

func TestHTMLViewer(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"docs/index.html": sampleHTML, "main.go": "package main\n"})

	s := NewScanner(DefaultScannerConfig())
	for _, ext := range HTMLExtensions {
		s.RegisterViewer(ext, HTMLViewer(0))
	}

	tr, err := s.Traverse(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, tr.Files, 2)

	var page string
	for _, f := range tr.Files {
		if f.Path == "docs/index.html" {
			page = f.Code
		}
	}
	assert.Contains(t, page, "## Intro")
	assert.Contains(t, page, "Hello world")
	assert.Contains(t, page, "- one\n- two")
	assert.Contains(t, page, "```\nx := 1\n```")
	assert.NotContains(t, page, "color:red")
	assert.NotContains(t, page, "alert")
}

func TestHTMLViewer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := HTMLViewer(0)(ctx, "unused.html")
	assert.ErrorIs(t, err, context.Canceled)
}
