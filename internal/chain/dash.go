package chain

func init() {
	// Dash Mainnet
	Register("DASH", Mainnet, &Params{
		Symbol:   "DASH",
		Name:     "Dash",
		Network:  Mainnet,
		Decimals: 8,

		// BIP44 coin type 5
		CoinType:       5,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x4C, // X...
		ScriptHashAddrID: 0x10, // 7...
		WIF:              0xCC, // X... (compressed)

		// Dash kept the Bitcoin xprv/xpub magic
		HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4},
		HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e},

		// Classic transaction, special tx type 0
		TxVersion: 3,

		DefaultAddressType: AddressP2PKH,
	})

	// Dash Testnet
	Register("DASH", Testnet, &Params{
		Symbol:   "DASH",
		Name:     "Dash Testnet",
		Network:  Testnet,
		Decimals: 8,

		CoinType:       1,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x8C, // y...
		ScriptHashAddrID: 0x13, // 8...
		WIF:              0xEF, // c...

		HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub

		TxVersion: 3,

		DefaultAddressType: AddressP2PKH,
	})
}
