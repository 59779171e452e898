// Package hierarchy maps identity records onto collection paths in the
// archive namespace.
package hierarchy

import (
	"errors"
	"fmt"
)

// CollectionType tags one level of the archive hierarchy.
type CollectionType string

const (
	PILab    CollectionType = "PI_Lab"
	Project  CollectionType = "Project"
	Flowcell CollectionType = "Flowcell"
	Sample   CollectionType = "Sample"
	Folder   CollectionType = "Folder"
	Run      CollectionType = "Run"
	Grid     CollectionType = "Grid"
	Images   CollectionType = "Images"
)

// ErrInvalidCollectionType is returned for a record type outside the known
// set, or one the active template has no level for. It is a configuration
// error and callers should stop.
var ErrInvalidCollectionType = errors.New("invalid collection type")

// AllTypes lists every supported collection type.
var AllTypes = []CollectionType{PILab, Project, Flowcell, Sample, Folder, Run, Grid, Images}

// ParseCollectionType validates s.
func ParseCollectionType(s string) (CollectionType, error) {
	t := CollectionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollectionType, s)
	}
	return t, nil
}

// Valid reports whether t is one of AllTypes.
func (t CollectionType) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DefaultPrefix is the segment prefix used when a level does not set one.
func (t CollectionType) DefaultPrefix() string {
	switch t {
	case PILab:
		return "PI_Lab_"
	case Project:
		return "Project_"
	case Flowcell:
		return "Flowcell_"
	case Sample:
		return "Sample_"
	}
	return ""
}
