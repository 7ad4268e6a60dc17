package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("notebook %s", "abc")))
	assert.Equal(t, KindValidation, KindOf(Validation("bad regex")))
	assert.Equal(t, KindInvalidState, KindOf(InvalidState("terminal")))
	assert.Equal(t, KindExternalService, KindOf(ExternalService("upstream")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapPreservesKindThroughChain(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(KindExternalService, inner, "jina reader failed for %s", "https://x.test")
	wrapped := fmt.Errorf("ingest: %w", err)

	assert.True(t, IsKind(wrapped, KindExternalService))
	assert.True(t, errors.Is(wrapped, inner))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid_state", KindInvalidState.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
