package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerPersonShare(t *testing.T) {
	tests := []struct {
		name   string
		value  Money
		people int
		want   string
	}{
		{name: "even split", value: 12000, people: 4, want: "30.00"},
		{name: "rounds to the cent", value: 10000, people: 3, want: "33.33"},
		{name: "rounds half up", value: 5, people: 2, want: "0.03"},
		{name: "no people", value: 10000, people: 0, want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Value: tt.value, PeopleCount: tt.people}
			assert.Equal(t, tt.want, ev.PerPersonShare().Decimal())
		})
	}
}

func TestMissingAllowsOversubscription(t *testing.T) {
	ev := Event{PeopleCount: 2}
	assert.Equal(t, 2, ev.Missing(0))
	assert.Equal(t, 0, ev.Missing(2))
	assert.Equal(t, -1, ev.Missing(3))
}

func TestMoneyJSON(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"value": 120.5, "people_count": 10}`), &ev))
	assert.Equal(t, Money(12050), ev.Value)

	err := json.Unmarshal([]byte(`{"value": -1}`), &ev)
	assert.Error(t, err)

	out, err := json.Marshal(Money(1999))
	require.NoError(t, err)
	assert.Equal(t, "19.99", string(out))
}

func TestMoneyString(t *testing.T) {
	s := Money(1250).String()
	assert.True(t, strings.HasPrefix(s, "R$ "), s)
	assert.Contains(t, s, "12")
}

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Ana  ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	_, err = NormalizeName(" \t ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = NormalizeName(strings.Repeat("x", 81))
	assert.True(t, IsValidation(err))
}
