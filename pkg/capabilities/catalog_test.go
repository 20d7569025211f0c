package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Integrity(t *testing.T) {
	r, err := NewRegistry(builtinEntries...)
	require.NoError(t, err)
	assert.Empty(t, r.Validate())

	entryIDs := map[string]bool{}
	for _, e := range r.Entries() {
		assert.False(t, entryIDs[e.ID], "duplicate entry %s", e.ID)
		entryIDs[e.ID] = true

		assert.True(t, e.HasVerb(e.DefaultVerb), "%s default verb", e.ID)

		verbIDs := map[string]bool{}
		for _, v := range e.Verbs {
			assert.False(t, verbIDs[v.ID], "duplicate verb %s/%s", e.ID, v.ID)
			verbIDs[v.ID] = true
			if v.Tier.Rank() > TierGreen.Rank() {
				assert.NotEmpty(t, v.Lens, "%s/%s needs lens fields", e.ID, v.ID)
			}
		}
	}
}

func TestCatalog_CoversEveryTierAndDesk(t *testing.T) {
	tiers := map[Tier]int{}
	desks := map[string]int{}
	for _, e := range Default().Entries() {
		desks[e.Desk]++
		for _, v := range e.Verbs {
			tiers[v.Tier]++
		}
	}
	assert.Positive(t, tiers[TierGreen])
	assert.Positive(t, tiers[TierYellow])
	assert.Positive(t, tiers[TierRed])
	for _, d := range []string{DeskConference, DeskFinance, DeskDocuments, DeskChat, DeskCalendar} {
		assert.Positive(t, desks[d], d)
	}
}

func TestNewRegistry_RejectsBrokenTables(t *testing.T) {
	green := Verb{ID: "look", Label: "Look", Tier: TierGreen}

	tests := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{
			name: "duplicate entry",
			entries: []Entry{
				{ID: "a", Verbs: []Verb{green}, DefaultVerb: "look"},
				{ID: "a", Verbs: []Verb{green}, DefaultVerb: "look"},
			},
			wantErr: "duplicate entry id",
		},
		{
			name:    "default verb missing",
			entries: []Entry{{ID: "a", Verbs: []Verb{green}, DefaultVerb: "nope"}},
			wantErr: "default verb",
		},
		{
			name:    "duplicate verb",
			entries: []Entry{{ID: "a", Verbs: []Verb{green, green}, DefaultVerb: "look"}},
			wantErr: "twice",
		},
		{
			name: "yellow without lens",
			entries: []Entry{{ID: "a", Verbs: []Verb{
				green,
				{ID: "do", Label: "Do", Tier: TierYellow},
			}, DefaultVerb: "look"}},
			wantErr: "no lens fields",
		},
		{
			name: "unknown tier",
			entries: []Entry{{ID: "a", Verbs: []Verb{
				{ID: "look", Label: "Look", Tier: "purple"},
			}, DefaultVerb: "look"}},
			wantErr: "unknown tier",
		},
		{
			name: "unknown lens type",
			entries: []Entry{{ID: "a", Verbs: []Verb{
				{ID: "look", Label: "Look", Tier: TierRed, Lens: []LensField{{Key: "k", Type: "blob"}}},
			}, DefaultVerb: "look"}},
			wantErr: "unknown type",
		},
		{
			name: "bad schema",
			entries: []Entry{{ID: "a", Verbs: []Verb{
				{ID: "look", Label: "Look", Tier: TierGreen, ParamsSchema: "{not json"},
			}, DefaultVerb: "look"}},
			wantErr: "schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.entries...)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"green", "yellow", "red"} {
		tier, ok := ParseTier(s)
		assert.True(t, ok)
		assert.Equal(t, s, tier.String())
	}
	for _, s := range []string{"", "GREEN", "Red", "amber", "__proto__", "green "} {
		_, ok := ParseTier(s)
		assert.False(t, ok, s)
	}
	assert.Less(t, TierGreen.Rank(), TierYellow.Rank())
	assert.Less(t, TierYellow.Rank(), TierRed.Rank())
	assert.Zero(t, Tier("blue").Rank())
	assert.True(t, TierRed.RequiresAuthority())
	assert.False(t, TierYellow.RequiresAuthority())
	assert.False(t, TierGreen.RequiresConfirmation())
}
