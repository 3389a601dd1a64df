package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Match(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    map[string]string
		ok      bool
	}{
		{"s3://b/scene_{band}.TIF", "s3://b/scene_B4.TIF", map[string]string{"band": "B4"}, true},
		{"{}_{band:2}.TIF", "s3://b/scene_B4.TIF", map[string]string{"band": "B4"}, true},
		{"{year}/{day}.nc", "2020/161.nc", map[string]string{"year": "2020", "day": "161"}, true},
		{"lit{{eral}}_{x}", "lit{eral}_1", map[string]string{"x": "1"}, true},
		{"dir/{band}/{band}.tif", "dir/B1/B1.tif", map[string]string{"band": "B1"}, true},
		{"scene_{band}.TIF", "other_B4.TIF", nil, false},
	}

	for _, tt := range tests {
		p, err := Compile(tt.pattern)
		require.NoError(t, err, tt.pattern)
		got, ok := p.Match(tt.input)
		assert.Equal(t, tt.ok, ok, tt.pattern)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.pattern)
		}
	}
}

func TestCompile_Fields(t *testing.T) {
	p, err := Compile("{b}/{a}/{b}")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, p.Fields())
	assert.Equal(t, "{b}/{a}/{b}", p.String())
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, p := range []string{"{band", "band}", "{1bad}", "{band:x}", "{band:0}"} {
		_, err := Compile(p)
		assert.True(t, errors.Is(err, ErrSyntax), "pattern %q: %v", p, err)
	}
}

func TestFormat(t *testing.T) {
	got, err := Format("s3://b/{{x}}_{band}.TIF", map[string]string{"band": "B2"})
	require.NoError(t, err)
	assert.Equal(t, "s3://b/{x}_B2.TIF", got)

	_, err = Format("{band}", nil)
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// Synthesize
// -----------------------------------------------------------------------------

func TestSynthesize_Consistent(t *testing.T) {
	hrefs := []string{"mem://x/scene_B1.TIF", "mem://x/scene_B2.TIF"}
	p, err := Synthesize(hrefs, []string{"B1", "B2"}, "band")
	require.NoError(t, err)
	assert.Equal(t, "mem://x/scene_{band}.TIF", p)

	compiled, err := Compile(p)
	require.NoError(t, err)
	for i, h := range hrefs {
		m, ok := compiled.Match(h)
		require.True(t, ok)
		assert.Equal(t, []string{"B1", "B2"}[i], m["band"])
	}
}

func TestSynthesize_NoTokens(t *testing.T) {
	p, err := Synthesize([]string{"a.tif", "b.tif"}, []string{"red", "nir"}, "band")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestSynthesize_Inconsistent(t *testing.T) {
	_, err := Synthesize([]string{"x/B1/a.tif", "x/b_B2.tif"}, []string{"B1", "B2"}, "band")
	assert.True(t, errors.Is(err, ErrInconsistent))

	_, err = Synthesize([]string{"x/B1.tif", "x/red.tif"}, []string{"B1", "B2"}, "band")
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestSynthesize_EscapesBraces(t *testing.T) {
	p, err := Synthesize([]string{"x/{v}/B1.tif", "x/{v}/B2.tif"}, []string{"B1", "B2"}, "band")
	require.NoError(t, err)
	assert.Equal(t, "x/{{v}}/{band}.tif", p)
}
