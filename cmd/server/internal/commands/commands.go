package commands

import (
	"fmt"

	"github.com/wolfeidau/personlookup/internal/store"
)

type Globals struct {
	Debug   bool
	Version string
}

// lookupKinds maps the --by values accepted on the command line to store lookups.
var lookupKinds = map[string]store.Lookup{
	"cpf":        store.LookupIdentifier,
	"name":       store.LookupName,
	"exact-name": store.LookupExactName,
}

func lookupKind(by string) (store.Lookup, error) {
	l, ok := lookupKinds[by]
	if !ok {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownLookup, by)
	}
	return l, nil
}
