// Package loramac provides structures and functions to encode and decode
// LoRaWAN 1.0.x frames, together with the cryptographic primitives (AES-CMAC
// message integrity, AES-CTR payload encryption and session-key derivation)
// used by an end-device MAC layer.
//
// The protocol state machine itself lives in the mac sub-package, the
// regional channel plans in the band sub-package.
package loramac
