package member

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrantStripe(t *testing.T) {
	tests := []struct {
		name        string
		belt        Belt
		stripes     int
		wantBelt    Belt
		wantStripes int
	}{
		{"increment below max", BeltWhite, 2, BeltWhite, 3},
		{"increment from zero", BeltBlue, 0, BeltBlue, 1},
		{"promotion resets stripes", BeltWhite, 4, BeltYellow, 0},
		{"promotion mid ladder", BeltPurple, 4, BeltBrown, 0},
		{"promotion into terminal belt", BeltBrown, 4, BeltBlack, 0},
		{"terminal belt at max is absorbing", BeltBlack, 4, BeltBlack, 4},
		{"terminal belt still collects stripes", BeltBlack, 1, BeltBlack, 2},
		{"unknown belt at max is absorbing", BeltUnknown, 4, BeltUnknown, 4},
		{"unknown belt still collects stripes", BeltUnknown, 0, BeltUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			belt, stripes := GrantStripe(tt.belt, tt.stripes)
			assert.Equal(t, tt.wantBelt, belt)
			assert.Equal(t, tt.wantStripes, stripes)
		})
	}
}

func TestGrantStripe_WalksFullLadder(t *testing.T) {
	belt, stripes := BeltWhite, 0

	// 5 grants per belt times 7 promotions lands on black.
	for i := 0; i < 5*7; i++ {
		belt, stripes = GrantStripe(belt, stripes)
	}
	assert.Equal(t, BeltBlack, belt)
	assert.Equal(t, 0, stripes)

	// From here on the state can only accumulate stripes and then freeze.
	for i := 0; i < 10; i++ {
		belt, stripes = GrantStripe(belt, stripes)
	}
	assert.Equal(t, BeltBlack, belt)
	assert.Equal(t, MaxStripes, stripes)
}

func TestParseBelt(t *testing.T) {
	assert.Equal(t, BeltWhite, ParseBelt("white"))
	assert.Equal(t, BeltBlack, ParseBelt(" Black "))
	assert.Equal(t, BeltUnknown, ParseBelt("rainbow"))
	assert.Equal(t, BeltUnknown, ParseBelt(""))
}
