package redflag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_EveryPhraseAnyCase(t *testing.T) {
	d := NewDetector()
	for _, p := range Phrases {
		for _, variant := range []string{p, strings.ToUpper(p), strings.ToUpper(p[:1]) + p[1:]} {
			msg := "Since this morning I have " + variant + " and feel awful"
			assert.True(t, d.IsEmergency(msg), variant)
		}
	}
}

func TestDetector_NoFalsePositiveOnRoutineText(t *testing.T) {
	d := NewDetector()
	assert.False(t, d.IsEmergency("I have had a mild cough and a runny nose for three days"))
	assert.False(t, d.IsEmergency(""))
	assert.Empty(t, d.Detect("itchy rash on my arm"))
}

func TestDetector_Detect(t *testing.T) {
	d := NewDetector()
	got := d.Detect("Crushing CHEST PAIN and I can’t breathe")
	assert.Equal(t, []string{"chest pain", "crushing", "can't breathe"}, got)
}
