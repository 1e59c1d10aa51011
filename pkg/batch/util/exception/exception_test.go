package exception

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := New(KindProtocol, "engine", "command failed", cause)

	assert.Equal(t, "[engine] command failed: exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindProtocol, err.Kind)
}

func TestNewBatchErrorf_TrailingErrorIsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewBatchErrorf("pipeline", "sheet %s failed", "STSim_Stratum", cause)

	assert.Equal(t, "sheet STSim_Stratum failed", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestNewBatchErrorf_ErrorConsumedByVerb(t *testing.T) {
	cause := errors.New("boom")
	err := NewBatchErrorf("pipeline", "failed: %v", cause)

	assert.Equal(t, "failed: boom", err.Message)
	assert.Nil(t, err.OriginalErr)
}

func TestKindOf(t *testing.T) {
	inner := New(KindIntegrity, "store", "no Stratum named C", nil)
	outer := NewBatchError("pipeline", "step failed", inner, false, false)
	wrapped := fmt.Errorf("job: %w", outer)

	assert.Equal(t, KindIntegrity, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindIntegrity))
	assert.False(t, IsKind(wrapped, KindScope))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(nil))
	assert.True(t, IsTemporary(NewBatchError("db", "ping", nil, true, false)))
	assert.True(t, IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, IsTemporary(errors.New("syntax error")))
}
