package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataRoute(md map[string]string) *DownstreamRoute {
	return &DownstreamRoute{Key: "orders", Metadata: md}
}

func TestMetadataString(t *testing.T) {
	r := metadataRoute(map[string]string{"team": "checkout", "empty": ""})
	assert.Equal(t, "checkout", r.MetadataString("team", "none"))
	assert.Equal(t, "", r.MetadataString("empty", "none"))
	assert.Equal(t, "none", r.MetadataString("owner", "none"))

	var missing *DownstreamRoute
	assert.Equal(t, "none", missing.MetadataString("team", "none"))
	assert.Equal(t, "none", metadataRoute(nil).MetadataString("team", "none"))
}

func TestMetadataBool(t *testing.T) {
	for _, test := range []struct {
		value      string
		expected   bool
		expectedOK bool
	}{
		{"true", true, true},
		{"Yes", true, true},
		{" on ", true, true},
		{"ok", true, true},
		{"ENABLE", true, true},
		{"enabled", true, true},
		{"1", true, true},
		{"false", false, true},
		{"No", false, true},
		{"off", false, true},
		{"disable", false, true},
		{"Disabled", false, true},
		{"0", false, true},
		{"maybe", false, false},
		{"", false, false},
	} {
		t.Run(test.value, func(t *testing.T) {
			r := metadataRoute(map[string]string{"cache": test.value})
			assert.Equal(t, test.expected, r.MetadataBool("cache"))

			v, ok := r.MetadataOptionalBool("cache")
			assert.Equal(t, test.expected, v)
			assert.Equal(t, test.expectedOK, ok)
		})
	}

	t.Run("missing", func(t *testing.T) {
		r := metadataRoute(nil)
		assert.False(t, r.MetadataBool("cache"))
		_, ok := r.MetadataOptionalBool("cache")
		assert.False(t, ok)
	})
}

func TestMetadataValues(t *testing.T) {
	r := metadataRoute(map[string]string{
		"tags":  " orders, checkout ,,eu ",
		"blank": " , ",
	})

	assert.Equal(t, []string{"orders", "checkout", "eu"}, r.MetadataValues("tags"))
	assert.Empty(t, r.MetadataValues("blank"))
	assert.Nil(t, r.MetadataValues("owners"))
}

func TestMetadataNumbers(t *testing.T) {
	r := metadataRoute(map[string]string{"retries": " 3 ", "ratio": "0.25", "bad": "three"})

	t.Run("int", func(t *testing.T) {
		i, err := r.MetadataInt("retries", 1)
		require.NoError(t, err)
		assert.Equal(t, 3, i)

		i, err = r.MetadataInt("missing", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, i)

		i, err = r.MetadataInt("bad", 1)
		assert.Error(t, err)
		assert.Equal(t, 1, i)

		_, err = r.MetadataInt("ratio", 1)
		assert.Error(t, err)
	})

	t.Run("float", func(t *testing.T) {
		f, err := r.MetadataFloat("ratio", 1)
		require.NoError(t, err)
		assert.Equal(t, 0.25, f)

		f, err = r.MetadataFloat("retries", 1)
		require.NoError(t, err)
		assert.Equal(t, 3.0, f)

		f, err = r.MetadataFloat("missing", 0.5)
		require.NoError(t, err)
		assert.Equal(t, 0.5, f)

		_, err = r.MetadataFloat("bad", 1)
		assert.Error(t, err)
	})
}

func TestMetadataJSON(t *testing.T) {
	type limits struct {
		Burst  int      `json:"burst"`
		Owners []string `json:"owners"`
	}

	r := metadataRoute(map[string]string{
		"limits": `{"burst":5,"owners":["tom","laura"]}`,
		"bad":    `{"burst":`,
	})

	var l limits
	found, err := r.MetadataJSON("limits", &l)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, limits{Burst: 5, Owners: []string{"tom", "laura"}}, l)

	found, err = r.MetadataJSON("missing", &l)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = r.MetadataJSON("bad", &l)
	assert.True(t, found)
	assert.Error(t, err)
}
