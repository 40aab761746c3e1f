package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed("cat.JPG", PostImageTypes))
	assert.True(t, Allowed("a.b.png", PostImageTypes))
	assert.False(t, Allowed("anim.gif", PostImageTypes))
	assert.True(t, Allowed("anim.gif", ProfilePictureTypes))
	assert.False(t, Allowed("noext", ProfilePictureTypes))
	assert.False(t, Allowed("evil.png.exe", ProfilePictureTypes))
}

func TestObjectName(t *testing.T) {
	a := ObjectName(ProfileFolder, "Me.PNG")
	b := ObjectName(ProfileFolder, "Me.PNG")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "profile_pics/"))
	assert.True(t, strings.HasSuffix(a, ".png"))

	assert.NotContains(t, ObjectName("", "x.jpg"), "/")
}

func TestURL(t *testing.T) {
	m := &Minio{bucket: "quillpost", publicURL: "http://127.0.0.1:9000"}
	assert.Equal(t, "http://127.0.0.1:9000/quillpost/profile_pics/a.png", m.URL("profile_pics/a.png"))
}
