package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

func TestDefaultProgram(t *testing.T) {
	program, err := DefaultProgram()

	require.NoError(t, err)
	tiers := program.Tiers.Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, loyalty.TierID("bronze"), tiers[0].ID)
	assert.Equal(t, 0, tiers[0].MinPoints)
	assert.Equal(t, "1", tiers[0].Multiplier.String())
	assert.Equal(t, 500, tiers[1].MinPoints)
	assert.Equal(t, "1.5", tiers[1].Multiplier.String())
	assert.Equal(t, 1000, tiers[2].MinPoints)
	assert.Equal(t, "2", tiers[2].Multiplier.String())

	reward, ok := program.Catalog.Find("free-shipping")
	require.True(t, ok)
	assert.Equal(t, 100, reward.PointCost)
	assert.Equal(t, loyalty.RewardTypeFreeShipping, reward.Type)
}

func TestLoadProgram_EmptyPathUsesDefault(t *testing.T) {
	program, err := LoadProgram("")

	require.NoError(t, err)
	assert.Equal(t, 3, program.Tiers.Len())
}

func TestLoadProgram_FromFile(t *testing.T) {
	path := writeFile(t, "program.yaml", `
tiers:
  - id: member
    name: Member
    min_points: 0
    multiplier: "1"
  - id: vip
    name: VIP
    min_points: 2000
    multiplier: "3"
rewards:
  - id: coffee
    name: Coffee
    point_cost: 150
    type: product
`)

	program, err := LoadProgram(path)

	require.NoError(t, err)
	assert.Equal(t, loyalty.TierID("vip"), program.Tiers.Resolve(2500).ID)
	assert.Len(t, program.Catalog.All(), 1)
}

func TestLoadProgram_MissingFile(t *testing.T) {
	_, err := LoadProgram(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestParseProgram_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name: "unknown field",
			yaml: "tiers:\n  - id: bronze\n    min_points: 0\n    multiplier: \"1\"\n    colour: brown\n",
		},
		{
			name: "bad multiplier",
			yaml: "tiers:\n  - id: bronze\n    min_points: 0\n    multiplier: fast\n",
		},
		{
			name:    "non-increasing thresholds",
			yaml:    "tiers:\n  - {id: bronze, min_points: 0, multiplier: \"1\"}\n  - {id: silver, min_points: 500, multiplier: \"1.5\"}\n  - {id: gold, min_points: 500, multiplier: \"2\"}\n",
			wantErr: loyalty.ErrInvalidTierTable,
		},
		{
			name:    "lowest tier above zero",
			yaml:    "tiers:\n  - {id: bronze, min_points: 10, multiplier: \"1\"}\n",
			wantErr: loyalty.ErrInvalidTierTable,
		},
		{
			name:    "no tiers",
			yaml:    "rewards: []\n",
			wantErr: loyalty.ErrInvalidTierTable,
		},
		{
			name:    "reward without cost",
			yaml:    "tiers:\n  - {id: bronze, min_points: 0, multiplier: \"1\"}\nrewards:\n  - {id: gift, type: product, point_cost: 0}\n",
			wantErr: loyalty.ErrInvalidReward,
		},
		{
			name:    "duplicate reward",
			yaml:    "tiers:\n  - {id: bronze, min_points: 0, multiplier: \"1\"}\nrewards:\n  - {id: gift, type: product, point_cost: 10}\n  - {id: gift, type: product, point_cost: 20}\n",
			wantErr: loyalty.ErrInvalidReward,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProgram([]byte(tt.yaml))

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
