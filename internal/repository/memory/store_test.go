package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	alice, err := s.Create(ctx, "alice@example.com", "Alice", "hi", "hash")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, alice.ID)

	_, err = s.Create(ctx, "ALICE@example.com", "Other", "", "hash")
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	got, err := s.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	missing, err := s.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserStore_ListExceptAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	bob, _ := s.Create(ctx, "bob@example.com", "Bob", "", "h")
	alice, _ := s.Create(ctx, "alice@example.com", "Alice", "", "h")
	carol, _ := s.Create(ctx, "carol@example.com", "Carol", "", "h")

	users, err := s.ListExcept(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)
	assert.Equal(t, carol.ID, users[1].ID)

	pic := "http://cdn/pic.png"
	updated, err := s.UpdateProfile(ctx, bob.ID, "Robert", "new bio", &pic)
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.FullName)
	require.NotNil(t, updated.ProfilePic)

	// nil avatar keeps the old one
	updated, err = s.UpdateProfile(ctx, bob.ID, "Bobby", "", nil)
	require.NoError(t, err)
	require.NotNil(t, updated.ProfilePic)
	assert.Equal(t, pic, *updated.ProfilePic)
}

func TestMessageStore_SeenTracking(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	m1, _ := s.Create(ctx, repository.NewMessage{SenderID: a, ReceiverID: b, Text: "1"})
	_, _ = s.Create(ctx, repository.NewMessage{SenderID: b, ReceiverID: a, Text: "2"})
	_, _ = s.Create(ctx, repository.NewMessage{SenderID: a, ReceiverID: b, Text: "3"})
	_, _ = s.Create(ctx, repository.NewMessage{SenderID: c, ReceiverID: b, Text: "other"})

	conv, err := s.ListConversation(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, conv, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{conv[0].Text, conv[1].Text, conv[2].Text})

	counts, err := s.UnseenCounts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{a: 2, c: 1}, counts)

	// only the receiver can mark
	changed, err := s.MarkSeen(ctx, m1.ID, a)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.MarkSeen(ctx, m1.ID, b)
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := s.MarkConversationSeen(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, _ = s.UnseenCounts(ctx, b)
	assert.Equal(t, map[uuid.UUID]int{c: 1}, counts)
}
