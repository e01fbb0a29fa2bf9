package dialog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestAdvance_HappyPath(t *testing.T) {
	carriers := DefaultCarriers()
	s := New("s1", "b1", now)

	steps := []struct {
		field Field
		value string
	}{
		{FieldProof, "file-123"},
		{FieldName, "  петренко   іван "},
		{FieldPhone, "+38 (050) 123-45-67"},
		{FieldCity, "київ"},
		{FieldCarrier, "Nova Poshta"},
		{FieldCarrierDetail, "№12"},
	}
	var err error
	for _, st := range steps {
		s, err = Advance(s, st.field, st.value, carriers, now)
		require.NoError(t, err, st.field)
	}

	assert.True(t, s.Complete())
	assert.Equal(t, model.ShippingDetails{
		FullName:      "Петренко Іван",
		Phone:         "+380501234567",
		City:          "Київ",
		Carrier:       "nova_poshta",
		CarrierDetail: "12",
	}, s.Shipping())
	assert.Equal(t, "file-123", s.Proof)
}

func TestAdvance_RejectsMalformedAndKeepsState(t *testing.T) {
	carriers := DefaultCarriers()
	base := State{SessionID: "s1", BatchID: "b1", Step: StepName, Proof: "f", UpdatedAt: now}

	tests := []struct {
		name  string
		state State
		field Field
		value string
	}{
		{"single word name", base, FieldName, "Ivan"},
		{"digits in name", base, FieldName, "Ivan 2Petrenko"},
		{"wrong field", base, FieldPhone, "+380501234567"},
		{"short phone", withStep(base, StepPhone), FieldPhone, "12345"},
		{"letters in phone", withStep(base, StepPhone), FieldPhone, "050-CALL-ME"},
		{"city digits", withStep(base, StepCity), FieldCity, "Kyiv 1"},
		{"unknown carrier", withStep(base, StepCarrier), FieldCarrier, "dhl"},
		{"bad postcode", State{Step: StepCarrierDetail, Carrier: "ukrposhta"}, FieldCarrierDetail, "123"},
		{"empty", base, FieldName, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.state, tt.field, tt.value, carriers, now.Add(time.Minute))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformedInput)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.NotEmpty(t, fe.Prompt)
			assert.Equal(t, tt.state, got)
		})
	}
}

func TestAdvance_CompleteRefusesMore(t *testing.T) {
	s := State{Step: StepComplete}
	_, err := Advance(s, FieldName, "A B", DefaultCarriers(), now)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRestart_KeepsProof(t *testing.T) {
	s := State{SessionID: "s1", BatchID: "b1", Step: StepCity, Proof: "f", Name: "A B", Phone: "0501234567"}
	r := s.Restart(now)
	assert.Equal(t, StepName, r.Step)
	assert.Equal(t, "f", r.Proof)
	assert.Empty(t, r.Name)
	assert.Empty(t, r.Phone)
	assert.ErrorIs(t, ErrDialogRestarted, model.ErrMalformedInput)
}

func TestPrompt_CarrierDetailUsesLabel(t *testing.T) {
	carriers := DefaultCarriers()
	assert.Equal(t, "Please enter the postcode.", Prompt(StepCarrierDetail, carriers, "ukrposhta"))
	assert.Contains(t, Prompt(StepCarrier, carriers, ""), "meest, nova_poshta, ukrposhta")
}

func TestLoadCarriers(t *testing.T) {
	cs, err := LoadCarriers("testdata/carriers.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"nova_poshta", "pickup"}, cs.Codes())

	pickup, ok := cs.Lookup("pickup")
	require.True(t, ok)
	assert.True(t, pickup.Valid("wed"))
	assert.False(t, pickup.Valid("sun"))

	def, err := LoadCarriers("")
	require.NoError(t, err)
	assert.Len(t, def, 3)

	_, err = LoadCarriers("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseCarriers_Invalid(t *testing.T) {
	_, err := ParseCarriers([]byte("carriers: []"))
	assert.Error(t, err)

	_, err = ParseCarriers([]byte("carriers:\n  - code: x\n    pattern: '('\n"))
	assert.Error(t, err)

	_, err = ParseCarriers([]byte("carriers:\n  - code: x\n  - code: x\n"))
	assert.Error(t, err)
}

func withStep(s State, step Step) State {
	s.Step = step
	return s
}
