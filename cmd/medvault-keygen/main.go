// Command medvault-keygen generates an RSA keypair for a doctor's device.
// The public half is registered with the identity provider; the private
// half stays on the device and is what turns a wrapped grant back into a
// usable master key.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hengadev/medvault"
)

func main() {
	privatePath := flag.String("private", "doctor_key.pem", "output path for the private key")
	publicPath := flag.String("public", "doctor_key.pub.pem", "output path for the public key")
	flag.Parse()

	if err := medvault.GenerateDoctorKeyPair(*privatePath, *publicPath); err != nil {
		fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s and %s\n", *privatePath, *publicPath)
}
