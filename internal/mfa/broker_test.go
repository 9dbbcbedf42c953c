package mfa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

func newTestBroker() *Broker {
	return NewBroker(credential.NewHasher(credential.DefaultParams()), nil)
}

func TestIssueThenVerify_Success(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()
	pos := models.PositionInfo{RoomName: "Lab-1", PosX: 2, PosY: 3, Name: "Lab-1"}

	code, err := b.Issue(ctx, "A12345678", pos)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	ok, gotPos, err := b.Verify(ctx, "A12345678", code)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pos, gotPos)
}

func TestVerify_CaseInsensitive(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()
	code, err := b.Issue(ctx, "A12345678", models.PositionInfo{})
	require.NoError(t, err)

	ok, _, err := b.Verify(ctx, "A12345678", lower(code))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_WrongCodeLeavesEntryIntact(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()
	code, err := b.Issue(ctx, "A12345678", models.PositionInfo{})
	require.NoError(t, err)

	ok, _, err := b.Verify(ctx, "A12345678", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	// Retry with the real code should still succeed — failed attempts
	// don't consume the entry.
	ok, _, err = b.Verify(ctx, "A12345678", code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_ConsumedOnSuccess(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()
	code, err := b.Issue(ctx, "A12345678", models.PositionInfo{})
	require.NoError(t, err)

	ok, _, err := b.Verify(ctx, "A12345678", code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = b.Verify(ctx, "A12345678", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssue_ReplacesPriorEntry(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()
	code1, err := b.Issue(ctx, "A12345678", models.PositionInfo{})
	require.NoError(t, err)

	_, err = b.Issue(ctx, "A12345678", models.PositionInfo{})
	require.NoError(t, err)

	ok, _, err := b.Verify(ctx, "A12345678", code1)
	require.NoError(t, err)
	assert.False(t, ok, "old code must not verify after regeneration")
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 32
		}
	}
	return string(out)
}
