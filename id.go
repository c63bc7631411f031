package checkout

import "github.com/xraph/checkout/id"

// ID is the identifier type shared by every checkout entity.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
