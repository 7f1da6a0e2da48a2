package geoid

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vacancy-map/internal/model"
)

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"6", "06"},
		{"06", "06"},
		{" 36 ", "36"},
		{"006", "06"},
		{"0", "00"},
	}
	for _, tt := range tests {
		got, err := NormalizeState(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeState_Idempotent(t *testing.T) {
	for i := 0; i < 100; i++ {
		raw := fmt.Sprintf("%d", i)
		once, err := NormalizeState(raw)
		require.NoError(t, err)
		assert.Len(t, once, 2)
		twice, err := NormalizeState(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeState_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "CA", "6a", "123", "-1"} {
		_, err := NormalizeState(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, model.ErrInvalidIdentifier), in)
	}
}

func TestNormalizeCounty(t *testing.T) {
	got, err := NormalizeCounty("37")
	require.NoError(t, err)
	assert.Equal(t, "037", got)

	got, err = NormalizeCounty("1")
	require.NoError(t, err)
	assert.Equal(t, "001", got)

	_, err = NormalizeCounty("1234")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
}

func TestNormalizeTractAndBlockGroup(t *testing.T) {
	got, err := NormalizeTract("101110")
	require.NoError(t, err)
	assert.Equal(t, "101110", got)

	got, err = NormalizeTract("4001")
	require.NoError(t, err)
	assert.Equal(t, "004001", got)

	_, err = NormalizeTract("1011.10")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))

	got, err = NormalizeBlockGroup("2")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestBuildGEOID(t *testing.T) {
	got, err := BuildGEOID("6")
	require.NoError(t, err)
	assert.Equal(t, "06", got)

	got, err = BuildGEOID("6", "37")
	require.NoError(t, err)
	assert.Equal(t, "06037", got)

	got, err = BuildGEOID("06", "037", "101110", "1")
	require.NoError(t, err)
	assert.Equal(t, "060371011101", got)

	_, err = BuildGEOID("06", "x")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))

	_, err = BuildGEOID("06", "037", "101110", "1", "9")
	assert.Error(t, err)
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		raw   string
		level model.GeoLevel
		want  string
	}{
		{"6", model.LevelState, "06"},
		{"6037", model.LevelCounty, "06037"},
		{"06037", model.LevelCounty, "06037"},
		{"6037101110", model.LevelTract, "06037101110"},
		{"60371011101", model.LevelBlock, "060371011101"},
	}
	for _, tc := range cases {
		got, err := Canonical(tc.raw, tc.level)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := Canonical("123456", model.LevelCounty)
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
	_, err = Canonical("06-037", model.LevelCounty)
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Los Angeles County", DisplayName("Los Angeles County, California"))
	assert.Equal(t, "Census Tract 1011.10", DisplayName("Census Tract 1011.10; Los Angeles County; California"))
	assert.Equal(t, "California", DisplayName(" California "))
	assert.Equal(t, "", DisplayName(""))
}

func TestRequired(t *testing.T) {
	s, c, err := Required(model.LevelState, "", "")
	require.NoError(t, err)
	assert.Empty(t, s)
	assert.Empty(t, c)

	s, _, err = Required(model.LevelState, "6", "")
	require.NoError(t, err)
	assert.Equal(t, "06", s)

	s, c, err = Required(model.LevelTract, "6", "37")
	require.NoError(t, err)
	assert.Equal(t, "06", s)
	assert.Equal(t, "037", c)

	_, _, err = Required(model.LevelCounty, "", "")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))

	_, _, err = Required(model.LevelTract, "06", "")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))

	_, _, err = Required(model.GeoLevel("zip"), "06", "")
	assert.True(t, errors.Is(err, model.ErrUnsupportedLevel))
}
