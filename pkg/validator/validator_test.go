package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name   string  `json:"name" validate:"required"`
	Rating float64 `json:"rating" validate:"gte=0,lte=5"`
}

func TestValidate(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(sample{Name: "Dr. A", Rating: 4.5}))

	err := v.Validate(&sample{Rating: 7})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sample.name failed on the 'required' rule")
	assert.Contains(t, err.Error(), "sample.rating failed on the 'lte' rule")
}

func TestValidateField(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateField("priority", "red", "oneof=red orange yellow green"))
	err := v.ValidateField("priority", "blue", "oneof=red orange yellow green")
	assert.EqualError(t, err, "priority failed on the 'oneof' rule")
}
