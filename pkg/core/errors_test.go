package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := NewError(KindProfileInUse, "demo", "profile is connected")
	wrapped := fmt.Errorf("remove: %w", err)

	assert.ErrorIs(t, wrapped, ErrProfileInUse)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindProfileInUse, KindOf(wrapped))
	assert.Equal(t, "demo: profile is connected", err.Error())
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WrapError(KindConnection, "demo", cause, "connect failed")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "demo: connect failed: dial tcp: refused", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "abc", limit: 10, want: "abc"},
		{name: "exact", in: "abcdef", limit: 6, want: "abcdef"},
		{name: "cut ascii", in: "abcdefghij", limit: 6, want: "abc…"},
		{name: "cut on rune boundary", in: "ééééé", limit: 6, want: "é…"},
		{name: "no limit", in: "abc", limit: 0, want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			if tt.limit > 0 {
				assert.LessOrEqual(t, len(got), tt.limit)
			}
		})
	}
}
