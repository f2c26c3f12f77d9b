package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/personlookup/internal/logger"
	"github.com/wolfeidau/personlookup/internal/store/sqlite"
)

// LookupCmd runs one lookup against a database file without starting the listener.
type LookupCmd struct {
	DB    string `help:"path to the person database" required:"" env:"PERSONLOOKUP_PRIMARY_DB"`
	By    string `help:"lookup to run (cpf, name or exact-name)" enum:"cpf,name,exact-name" default:"cpf"`
	Value string `arg:"" help:"identifier, name fragment or full name to look up"`
}

func (l *LookupCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	return l.run(log.WithContext(ctx), os.Stdout)
}

func (l *LookupCmd) run(ctx context.Context, out io.Writer) error {
	kind, err := lookupKind(l.By)
	if err != nil {
		return err
	}

	ps, err := sqlite.Open(ctx, l.DB)
	if err != nil {
		return err
	}
	defer ps.Close()

	records, err := kind.Run(ctx, ps, l.Value)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	return nil
}
