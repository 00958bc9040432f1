package model

// TokenMeta is the ERC20 metadata of a pool coin or LP token. Symbol and Name are
// best effort and may be empty.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Coin returns the part of the metadata a pool snapshot keeps.
func (m TokenMeta) Coin() CoinMeta {
	return CoinMeta{Address: m.Address, Decimals: m.Decimals}
}

// Label is the symbol when known, otherwise the address.
func (m TokenMeta) Label() string {
	if m.Symbol != "" {
		return m.Symbol
	}
	return m.Address
}
