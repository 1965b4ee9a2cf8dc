// Command ephemera-keygen generates a fresh ed25519 identity and prints the
// base58-encoded private key and derived PeerId, mirroring the original's
// generate-keys CLI subcommand.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
)

func main() {
	count := flag.Int("count", 1, "number of keypairs to generate")
	flag.Parse()

	for i := 0; i < *count; i++ {
		kp, err := crypto.Generate()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ephemera-keygen:", err)
			os.Exit(1)
		}
		fmt.Printf("peer_id=%s private_key_base58=%s public_key_base58=%s\n",
			kp.PeerId().String(),
			base58.Encode(kp.PrivateKeyBytes()),
			base58.Encode(kp.PublicKey()),
		)
	}
}
