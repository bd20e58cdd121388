// Command gopush-identity inspects a push client identity file and
// reports the bundle ID, topics, and expiry it's scoped to, so a
// misconfigured certificate shows up before it reaches a running
// service.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/pflag"

	"github.com/mbillemont/gopush"
)

func main() {
	var password, keyFile string
	var asJSON, verbose, asPEM bool

	pflag.StringVar(&password, "password", "", "PKCS#12 import password")
	pflag.StringVar(&keyFile, "key", "", "PEM private key file (if the identity file is a PEM certificate)")
	pflag.BoolVar(&asJSON, "json", false, "print as JSON instead of plain text")
	pflag.BoolVar(&verbose, "verbose", false, "dump the full parsed struct with kr/pretty")
	pflag.BoolVar(&asPEM, "pem", false, "print the leaf certificate as PEM instead of its parsed fields")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gopush-identity [flags] <identity-file>")
		os.Exit(2)
	}
	path := pflag.Arg(0)

	var identity apns.Identity
	var err error
	if keyFile != "" {
		identity, err = apns.LoadIdentityPEM(path, keyFile)
	} else {
		identity, err = apns.LoadIdentity(path, password)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if asPEM {
		os.Stdout.Write(apns.CertificatePEM(identity))
		return
	}

	info, err := apns.Info(identity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	switch {
	case verbose:
		pretty.Println(info)
	case asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(info)
	default:
		fmt.Printf("common name:  %s\n", info.CommonName)
		fmt.Printf("bundle id:    %s\n", info.BundleID)
		fmt.Printf("topics:       %v\n", info.Topics)
		fmt.Printf("environments: development=%v production=%v\n", info.Development, info.Production)
		fmt.Printf("apple issued: %v\n", info.IsAppleIssued)
		fmt.Printf("expires:      %s\n", info.Expires.Format("2006-01-02"))
	}
}
