package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	src := `---
title: x
---

# Heading

![first *pic*](https://s3.example.com/a.png?sig=1)

- item ![inline](https://s3.example.com/b.jpg)

> ![quoted](https://cdn.example.com/img/c.png)

[not an image](https://example.com)
`
	refs := Discover([]byte(src))
	require.Len(t, refs, 3)
	assert.Equal(t, "https://s3.example.com/a.png?sig=1", refs[0].URL)
	assert.Equal(t, "first pic", refs[0].Alt)
	assert.Equal(t, "https://s3.example.com/b.jpg", refs[1].URL)
	assert.Equal(t, "https://cdn.example.com/img/c.png", refs[2].URL)
}

func TestDiscoverNone(t *testing.T) {
	assert.Empty(t, Discover([]byte("plain text\n")))
}
