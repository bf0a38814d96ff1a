package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	input := []byte("# pinned deps\nrequests==2.31.0\n\nurllib3==1.26.18\n")
	manifest, err := ParseManifest(input)
	require.NoError(t, err)

	want := Manifest{
		{Name: "requests", Version: "2.31.0"},
		{Name: "urllib3", Version: "1.26.18"},
	}
	if diff := cmp.Diff(want, manifest); diff != "" {
		t.Fatalf("unexpected manifest (-want +got):\n%s", diff)
	}
}

func TestParseManifestRejectsMalformedLine(t *testing.T) {
	_, err := ParseManifest([]byte("requests==2.31.0\nnot-a-pin\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRenderRoundTripsParse(t *testing.T) {
	manifest := Manifest{
		{Name: "flask", Version: "3.0.0"},
		{Name: "jinja2", Version: "3.1.3"},
	}
	parsed, err := ParseManifest(manifest.Render())
	require.NoError(t, err)
	assert.Equal(t, manifest, parsed)
}

func TestWithPin(t *testing.T) {
	manifest := Manifest{{Name: "requests", Version: "2.30.0"}}

	updated := manifest.WithPin("requests", "2.31.0")
	assert.Equal(t, "2.31.0", updated.VersionOf("requests"))
	// the receiver is untouched
	assert.Equal(t, "2.30.0", manifest.VersionOf("requests"))

	appended := manifest.WithPin("urllib3", "1.26.18")
	assert.Equal(t, "1.26.18", appended.VersionOf("urllib3"))
	assert.Len(t, appended, 2)
}

func TestVersionOfMissingPackage(t *testing.T) {
	assert.Equal(t, "", Manifest{}.VersionOf("requests"))
}
