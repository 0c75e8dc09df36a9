package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorTerms(t *testing.T) {
	actor := &Actor{
		Name:    "Scattered Spider",
		Aliases: []string{"UNC3944", "scattered spider", " Octo Tempest ", ""},
	}

	assert.Equal(t, []string{"Scattered Spider", "UNC3944", "Octo Tempest"}, actor.Terms())
}

func TestActorTerms_NameOnly(t *testing.T) {
	actor := &Actor{Name: "APT29"}
	assert.Equal(t, []string{"APT29"}, actor.Terms())
}
