package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ralfizdigital/retailease-license/pkg/license"
)

func main() {
	bits := flag.Int("bits", 4096, "RSA modulus length")
	flag.Parse()

	keyPair, err := license.GenerateKeyPair(*bits)
	if err != nil {
		log.Fatalf("failed to generate key pair: %v", err)
	}

	privPEM, err := keyPair.PrivateKeyPEM()
	if err != nil {
		log.Fatalf("failed to encode private key: %v", err)
	}
	pubPEM, err := keyPair.PublicKeyPEM()
	if err != nil {
		log.Fatalf("failed to encode public key: %v", err)
	}

	fmt.Println("=== License Signing Key Pair Generated ===")
	fmt.Println()
	fmt.Println("Private key (store only in KeyStore, never ship to a device):")
	fmt.Println(privPEM)
	fmt.Println("Public key (embed in POS clients for offline verification):")
	fmt.Println(pubPEM)
}
