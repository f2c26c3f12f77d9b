package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/personlookup/internal/certs"
)

// CertInfoCmd checks the TLS key pair the server would load and prints a summary.
type CertInfoCmd struct {
	Cert string `help:"path to TLS cert file" default:"cert.pem" env:"PERSONLOOKUP_CERT"`
	Key  string `help:"path to TLS key file" default:"key.pem" env:"PERSONLOOKUP_KEY"`
}

func (c *CertInfoCmd) Run() error {
	return c.run(os.Stdout, time.Now())
}

func (c *CertInfoCmd) run(out io.Writer, now time.Time) error {
	pair, err := certs.Load(certs.Config{ServerCertPath: c.Cert, ServerKeyPath: c.Key})
	if err != nil {
		return err
	}

	if err := pair.Validate(); err != nil {
		return err
	}

	info, err := pair.Leaf()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Subject:     %s\n", info.Subject)
	fmt.Fprintf(out, "Issuer:      %s\n", info.Issuer)
	fmt.Fprintf(out, "Not Before:  %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not After:   %s\n", info.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(out, "Fingerprint: %s\n", info.Fingerprint)

	if now.After(info.NotAfter) {
		fmt.Fprintln(out, "WARNING: certificate has expired")
	}

	return nil
}
