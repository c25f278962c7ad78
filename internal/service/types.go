// Package service contains the record source for the tree map: loading the
// tree dataset, owner lookups, and the calls into the focus engine.
package service

import (
	"errors"

	"github.com/paulmach/orb"
)

var (
	// ErrTreeNotFound is returned when a tree ID is unknown.
	ErrTreeNotFound = errors.New("tree not found")
	// ErrNoVisibleTrees is returned when navigation has nothing to move to.
	ErrNoVisibleTrees = errors.New("no trees in view")
)

// UnknownOwner is the display name for emails without a known owner.
const UnknownOwner = "Unknown Owner"

// Tree is a planted tree. Location is nil when the source feature had no
// usable point geometry.
type Tree struct {
	ID          string     `json:"id" doc:"Tree identifier" example:"1"`
	OwnerEmail  string     `json:"ownerEmail" doc:"Owner email" example:"user1@example.com"`
	Owner       string     `json:"owner,omitempty" doc:"Owner display name" example:"John Doe"`
	Name        string     `json:"name" doc:"Tree name" example:"Umuvumu Tree"`
	Species     string     `json:"species,omitempty" doc:"Botanical species" example:"Ficus thonningii"`
	PlantedYear int        `json:"plantedYear,omitempty" doc:"Year the tree was planted" example:"2015"`
	CO2Offset   float64    `json:"co2Offset" doc:"CO2 offset in tons" example:"0.5"`
	Description string     `json:"description,omitempty" doc:"Free text description"`
	Images      []string   `json:"images,omitempty" doc:"Image URLs for the carousel"`
	Location    *orb.Point `json:"location,omitempty" doc:"Position [lon, lat]"`
}

// Owner maps an email to a display name.
type Owner struct {
	Email string `json:"email" doc:"Owner email" example:"demo@example.com"`
	Name  string `json:"name" doc:"Display name" example:"Demo User"`
	Trees int    `json:"trees" doc:"Number of trees owned"`
}

// defaultOwners are the demo accounts shipped with the embedded dataset.
var defaultOwners = map[string]string{
	"user1@example.com": "John Doe",
	"demo@example.com":  "Demo User",
}
