package oban

import "github.com/polvalente/oban/id"

// ID is the primary identifier type for all Oban entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
