package archive

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"archive/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_Compare(t *testing.T) {
	ordered := []Version{
		ZeroVersion,
		{Major: 1},
		{Major: 1, Minor: 1},
		{Major: 1, Minor: 2},
		{Major: 1, Minor: 10},
		{Major: 2},
		{Major: 2, Minor: 1},
		{Major: 10},
	}
	for i := range ordered {
		for j := range ordered {
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			assert.Equal(t, want, ordered[i].Compare(ordered[j]), "%s vs %s", ordered[i], ordered[j])
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1", want: Version{Major: 1}},
		{in: "12", want: Version{Major: 12}},
		{in: "1.1", want: Version{Major: 1, Minor: 1}},
		{in: "3.14", want: Version{Major: 3, Minor: 14}},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "01", wantErr: true},
		{in: "1.0", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "1.2.3", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "v1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestVersion_ValidateFor(t *testing.T) {
	assert.NoError(t, Version{Major: 1}.ValidateFor(KindModule))
	assert.NoError(t, Version{Major: 1, Minor: 1}.ValidateFor(KindCollection))
	assert.NoError(t, Version{Major: 4, Minor: 2}.ValidateFor(KindSubCollection))

	assert.ErrorIs(t, Version{Major: 1, Minor: 1}.ValidateFor(KindModule), domain.ErrInvalidVersionKind)
	assert.ErrorIs(t, Version{Major: 1}.ValidateFor(KindCollection), domain.ErrInvalidVersionKind)
	assert.ErrorIs(t, ZeroVersion.ValidateFor(KindModule), domain.ErrValidation)
}

func TestVersion_Nullable(t *testing.T) {
	assert.Nil(t, Version{Major: 3}.MinorPtr())
	minor := Version{Major: 3, Minor: 2}.MinorPtr()
	require.NotNil(t, minor)
	assert.Equal(t, 2, *minor)

	assert.Equal(t, Version{Major: 3, Minor: 2}, VersionFrom(3, minor))
	assert.Equal(t, Version{Major: 3}, VersionFrom(3, nil))
}

func TestLegacyVersion(t *testing.T) {
	assert.Equal(t, "1.7", Version{Major: 7}.LegacyString())

	v, err := ParseLegacyVersion("1.7", KindModule)
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 7}, v)

	v, err = ParseLegacyVersion("1.7", KindCollection)
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 7, Minor: 1}, v)

	for _, bad := range []string{"2.7", "1", "1.x", "1.07"} {
		_, err := ParseLegacyVersion(bad, KindModule)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

func TestParseKindAndState(t *testing.T) {
	k, err := ParseKind("SubCollection")
	require.NoError(t, err)
	assert.True(t, k.IsComposite())
	assert.False(t, KindModule.IsComposite())

	_, err = ParseKind("Book")
	assert.ErrorIs(t, err, domain.ErrValidation)

	eligible := map[State]bool{
		StateQueued:     false,
		StateProcessing: false,
		StateCurrent:    true,
		StateFallback:   true,
		StateSuperseded: false,
		StateError:      false,
	}
	for s, want := range eligible {
		parsed, err := ParseState(string(s))
		require.NoError(t, err)
		assert.Equal(t, want, parsed.Eligible(), s)
	}

	_, err = ParseState("current")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRepublishResult_Err(t *testing.T) {
	r := NewRepublishResult()
	assert.NoError(t, r.Err())

	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	r.Failures[b] = &domain.RootError{RootID: 2, Identity: b, Err: domain.ErrCyclicContainment}
	r.Failures[a] = &domain.RootError{RootID: 1, Identity: a, Err: domain.ErrAmbiguousRoot}

	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmbiguousRoot)
	assert.ErrorIs(t, err, domain.ErrCyclicContainment)

	var rootErr *domain.RootError
	require.True(t, errors.As(err, &rootErr))
	assert.Equal(t, int64(1), rootErr.RootID, "failures join in identity order")
}

func TestEventFor(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)
	doc := &Document{ID: 7, Identity: uuid.New(), Version: Version{Major: 2, Minor: 3}, Kind: KindCollection, State: StateCurrent}
	e := EventFor(doc, at)
	assert.Equal(t, int64(7), e.DocumentID)
	assert.Equal(t, "2.3", e.RenderedVersion)
	assert.Equal(t, StateCurrent, e.State)
	assert.Equal(t, "7@"+strconv.FormatInt(at.UnixNano(), 10), e.DedupKey())
}
