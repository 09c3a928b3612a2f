package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/klingon-exchange/dashsend/internal/chain"
)

// ErrInvalidAddress is returned for addresses that are malformed, belong to
// another network, or are not pay-to-pubkey-hash.
var ErrInvalidAddress = errors.New("invalid address")

// DecodePubKeyHash returns the 20-byte public key hash behind a P2PKH
// address on the given chain.
func DecodePubKeyHash(address string, params *chain.Params) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	netParams := params.ChainCfg()
	decoded, err := btcutil.DecodeAddress(address, netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}

	pkh, ok := decoded.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not pay-to-pubkey-hash", ErrInvalidAddress, address)
	}
	if !pkh.IsForNet(netParams) {
		return nil, fmt.Errorf("%w: %q is not a %s address", ErrInvalidAddress, address, params.Name)
	}

	hash := pkh.Hash160()
	return append([]byte(nil), hash[:]...), nil
}

// EncodePubKeyHash renders a public key hash as a P2PKH address.
func EncodePubKeyHash(pubKeyHash []byte, params *chain.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, params.ChainCfg())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr.EncodeAddress(), nil
}

// ValidateAddress checks if an address is a P2PKH address for a chain/network.
func ValidateAddress(address string, params *chain.Params) bool {
	_, err := DecodePubKeyHash(address, params)
	return err == nil
}

// PrivateKeyToWIF converts a private key to Wallet Import Format.
func PrivateKeyToWIF(privKey *btcec.PrivateKey, params *chain.Params) (string, error) {
	wif, err := btcutil.NewWIF(privKey, params.ChainCfg(), true)
	if err != nil {
		return "", fmt.Errorf("failed to create WIF: %w", err)
	}
	return wif.String(), nil
}

// WIFToPrivateKey converts a WIF string to a private key.
func WIFToPrivateKey(wifStr string, params *chain.Params) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WIF: %w", err)
	}

	if !wif.IsForNet(params.ChainCfg()) {
		return nil, fmt.Errorf("WIF is for different network")
	}

	return wif.PrivKey, nil
}
