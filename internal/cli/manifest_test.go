package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseManifestsSingleDocument(t *testing.T) {
	data := []byte(`
kind: Incident
spec:
  title: Printer on fire
  priority: high
`)
	manifests, err := ParseManifests(data)
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m := manifests[0]
	assert.Equal(t, KindIncident, m.Kind)
	assert.Equal(t, "Printer on fire", m.name())
	assert.Equal(t, "high", gjson.GetBytes(m.JSON, "priority").String())
}

func TestParseManifestsMultipleDocuments(t *testing.T) {
	data := []byte(`
kind: Asset
spec:
  name: web-01
---
kind: ConfigItem
spec:
  name: nginx
---
`)
	manifests, err := ParseManifests(data)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, KindAsset, manifests[0].Kind)
	assert.Equal(t, KindConfigItem, manifests[1].Kind)
	assert.Equal(t, "web-01", manifests[0].name())
}

func TestParseManifestsRejectsUnknownKind(t *testing.T) {
	data := []byte("kind: Ticket\nspec:\n  title: nope\n")
	_, err := ParseManifests(data)
	assert.Error(t, err)
}

func TestParseManifestsRejectsMissingKind(t *testing.T) {
	data := []byte("spec:\n  title: nope\n")
	_, err := ParseManifests(data)
	assert.Error(t, err)
}

func TestParseManifestsEmptyInput(t *testing.T) {
	manifests, err := ParseManifests([]byte("\n---\n\n"))
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestParseManifestsReplacesTabs(t *testing.T) {
	data := []byte("kind: Problem\nspec:\n\ttitle: tabbed\n")
	manifests, err := ParseManifests(data)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "tabbed", manifests[0].name())
}

func TestManifestNameFallsBack(t *testing.T) {
	m := Manifest{Kind: KindAsset, Spec: map[string]any{"serial": "x"}}
	assert.Equal(t, "(unnamed)", m.name())
}
