package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile_RejectsEmptyAndMalformed(t *testing.T) {
	_, err := Compile("")
	require.ErrorIs(t, err, ErrEmptyPath)

	_, err = Compile("a..b")
	require.ErrorIs(t, err, ErrEmptySegment)
}

func TestPath_GetNestedField(t *testing.T) {
	p := MustCompile("d.user.id")
	doc, err := Decode([]byte(`{"d":{"user":{"id":"448546825532866560"}}}`))
	require.NoError(t, err)

	v, err := p.Get(doc)
	require.NoError(t, err)
	require.Equal(t, "448546825532866560", v)
}

func TestPath_GetArrayIndex(t *testing.T) {
	p := MustCompile("d.mentions.0")
	doc, err := Decode([]byte(`{"d":{"mentions":["a","b"]}}`))
	require.NoError(t, err)

	v, err := p.Get(doc)
	require.NoError(t, err)
	require.Equal(t, "a", v)
}

func TestPath_NotFound(t *testing.T) {
	p := MustCompile("d.missing")
	doc, _ := Decode([]byte(`{"d":{}}`))
	_, err := p.Get(doc)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSource_Policies(t *testing.T) {
	doc, _ := Decode([]byte(`{"d":{}}`))
	asString := func(v interface{}) (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", ErrNotFound
		}
		return s, nil
	}

	abort := NewSource(MustCompile("d.missing"), asString)
	_, err := abort.Resolve(doc)
	require.Error(t, err)

	drop := NewSource(MustCompile("d.missing"), asString).WithDrop()
	_, err = drop.Resolve(doc)
	require.ErrorIs(t, err, ErrDrop)

	withDefault := NewSource(MustCompile("d.missing"), asString).WithDefault("fallback")
	v, err := withDefault.Resolve(doc)
	require.NoError(t, err)
	require.Equal(t, "fallback", v)

	withOrElse := NewSource(MustCompile("d.missing"), asString).WithOrElse(func() string { return "computed" })
	v, err = withOrElse.Resolve(doc)
	require.NoError(t, err)
	require.Equal(t, "computed", v)
}
