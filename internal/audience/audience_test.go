package audience_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	contacts []domain.Contact
	groups   []domain.Group
	failAt   int // ActiveEmails call index that fails, -1 for never
	calls    int
}

func newMemStore() *memStore { return &memStore{failAt: -1} }

func (m *memStore) active(userID string) []domain.Contact {
	var out []domain.Contact
	for _, c := range m.contacts {
		if c.UserID == userID && c.Eligible() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (m *memStore) CountActive(_ context.Context, userID string) (int, error) {
	return len(m.active(userID)), nil
}

func (m *memStore) ActiveEmails(_ context.Context, userID string, offset, limit int) ([]string, error) {
	defer func() { m.calls++ }()
	if m.calls == m.failAt {
		return nil, errors.New("connection reset")
	}
	all := m.active(userID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]string, 0, end-offset)
	for _, c := range all[offset:end] {
		out = append(out, c.Email)
	}
	return out, nil
}

func (m *memStore) FindGroups(_ context.Context, userID string, groupIDs []string) ([]domain.Group, error) {
	want := map[string]bool{}
	for _, id := range groupIDs {
		want[id] = true
	}
	var out []domain.Group
	for _, g := range m.groups {
		if g.UserID != userID || len(g.ContactIDs) == 0 {
			continue
		}
		if len(want) > 0 && !want[g.ID] {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *memStore) byIDs(userID string, ids []string) []domain.Contact {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Contact
	for _, c := range m.contacts {
		if want[c.ID] && c.UserID == userID && c.Eligible() {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) CountActiveByIDs(_ context.Context, userID string, ids []string) (int, error) {
	return len(m.byIDs(userID, ids)), nil
}

func (m *memStore) ActiveEmailsByIDs(_ context.Context, userID string, ids []string) ([]string, error) {
	var out []string
	for _, c := range m.byIDs(userID, ids) {
		out = append(out, c.Email)
	}
	return out, nil
}

func seedContacts(m *memStore, userID string, n int) {
	for i := 0; i < n; i++ {
		m.contacts = append(m.contacts, domain.Contact{
			ID: fmt.Sprintf("ct-%04d", i), UserID: userID,
			Email: fmt.Sprintf("user%04d@example.com", i), Active: true,
		})
	}
}

func drain(t *testing.T, a *audience.Audience) [][]string {
	t.Helper()
	var chunks [][]string
	for {
		emails, ok, err := a.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return chunks
		}
		chunks = append(chunks, emails)
	}
}

func TestResolveAllContactsChunks(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 2500)
	store.contacts = append(store.contacts, domain.Contact{ID: "off", UserID: "u1", Email: "off@example.com"})

	r := audience.NewResolver(store, 0)
	a, err := r.Resolve(context.Background(), domain.DispatchTarget{UserID: "u1", Audience: domain.AllContacts{}})
	require.NoError(t, err)
	assert.Equal(t, audience.Ready, a.Status())
	assert.Equal(t, 2500, a.Total())

	chunks := drain(t, a)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 500)
}

func TestResolveAllContactsEmpty(t *testing.T) {
	r := audience.NewResolver(newMemStore(), 10)
	a, err := r.Resolve(context.Background(), domain.DispatchTarget{UserID: "u1", Audience: domain.AllContacts{}})
	require.NoError(t, err)
	assert.Equal(t, audience.NoContacts, a.Status())
	assert.True(t, a.Empty())
	assert.Empty(t, drain(t, a))
}

func TestInvalidEmailsAreDropped(t *testing.T) {
	store := newMemStore()
	store.contacts = []domain.Contact{
		{ID: "1", UserID: "u1", Email: "good@example.com", Active: true},
		{ID: "2", UserID: "u1", Email: "not an email", Active: true},
		{ID: "3", UserID: "u1", Email: "missing-at.example.com", Active: true},
	}

	a, err := audience.NewResolver(store, 10).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.AllContacts{}})
	require.NoError(t, err)

	chunks := drain(t, a)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "good@example.com")
	assert.Equal(t, []string{"good@example.com"}, chunks[0])
}

func TestGroupsUnionAndDedup(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 5)
	// Same address under a second contact id.
	store.contacts = append(store.contacts, domain.Contact{ID: "dup", UserID: "u1", Email: "user0000@example.com", Active: true})
	store.groups = []domain.Group{
		{ID: "g1", UserID: "u1", ContactIDs: []string{"ct-0000", "ct-0001", "ct-0002"}},
		{ID: "g2", UserID: "u1", ContactIDs: []string{"ct-0002", "ct-0003", "dup"}},
		{ID: "g3", UserID: "u1", ContactIDs: []string{"ct-0004"}},
	}

	a, err := audience.NewResolver(store, 2).Resolve(context.Background(), domain.DispatchTarget{
		UserID: "u1", Audience: domain.Groups{GroupIDs: []string{"g1", "g2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, audience.Ready, a.Status())

	var all []string
	for _, c := range drain(t, a) {
		all = append(all, c...)
	}
	assert.ElementsMatch(t, []string{
		"user0000@example.com", "user0001@example.com", "user0002@example.com", "user0003@example.com",
	}, all)
	assert.LessOrEqual(t, len(all), a.Total())
}

func TestGroupsEmptyFilterMeansAllGroups(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 3)
	store.groups = []domain.Group{
		{ID: "g1", UserID: "u1", ContactIDs: []string{"ct-0000"}},
		{ID: "g2", UserID: "u1", ContactIDs: []string{"ct-0001", "ct-0002"}},
	}

	a, err := audience.NewResolver(store, 0).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.Groups{}})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Total())
}

func TestGroupsFilterMatchingNothingDoesNotFallBack(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 3)
	store.groups = []domain.Group{{ID: "g1", UserID: "u1", ContactIDs: []string{"ct-0000"}}}

	a, err := audience.NewResolver(store, 0).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.Groups{GroupIDs: []string{"missing"}}})
	require.NoError(t, err)
	assert.Equal(t, audience.NoGroups, a.Status())
	assert.Empty(t, drain(t, a))
}

func TestGroupsWithoutContacts(t *testing.T) {
	store := newMemStore()
	store.groups = []domain.Group{{ID: "g1", UserID: "u1"}}

	a, err := audience.NewResolver(store, 0).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.Groups{}})
	require.NoError(t, err)
	// Groups with empty contact lists are excluded, so none match.
	assert.Equal(t, audience.NoGroups, a.Status())
}

func TestGroupsWhoseContactsAreAllInactive(t *testing.T) {
	store := newMemStore()
	store.contacts = []domain.Contact{
		{ID: "c1", UserID: "u1", Email: "gone@example.com", Active: false},
		{ID: "c2", UserID: "u1", Email: "", Active: true},
	}
	store.groups = []domain.Group{{ID: "g1", UserID: "u1", ContactIDs: []string{"c1", "c2"}}}

	a, err := audience.NewResolver(store, 0).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.Groups{}})
	require.NoError(t, err)
	assert.True(t, a.Empty())
	assert.Equal(t, 0, a.Total())
	assert.Equal(t, audience.NoGroupContacts, a.Status())
	assert.Equal(t, "No contacts in groups", a.Status().Message())
	assert.Empty(t, drain(t, a))
}

func TestResetRestartsCursor(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 25)

	a, err := audience.NewResolver(store, 10).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.AllContacts{}})
	require.NoError(t, err)

	first := drain(t, a)
	a.Reset()
	second := drain(t, a)
	assert.Equal(t, first, second)
}

func TestNextPropagatesStoreError(t *testing.T) {
	store := newMemStore()
	seedContacts(store, "u1", 25)
	store.failAt = 1

	a, err := audience.NewResolver(store, 10).Resolve(context.Background(),
		domain.DispatchTarget{UserID: "u1", Audience: domain.AllContacts{}})
	require.NoError(t, err)

	_, ok, err := a.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = a.Next(context.Background())
	assert.Error(t, err)
}

func TestStatusMessages(t *testing.T) {
	assert.Equal(t, "No active contacts found", audience.NoContacts.Message())
	assert.Equal(t, "No groups found", audience.NoGroups.Message())
	assert.Equal(t, "No contacts in groups", audience.NoGroupContacts.Message())
}
