package model

// CoinMeta identifies one pool asset.
type CoinMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// PoolState is the durable snapshot of a pool. Amounts are base-10 strings; balances
// are in native token units.
type PoolState struct {
	Name          string     `json:"name"`
	Address       string     `json:"address"`
	LPToken       string     `json:"lp_token"`
	Owner         string     `json:"owner"`
	Coins         []CoinMeta `json:"coins"`
	A             uint64     `json:"a"`
	Fee           uint64     `json:"fee"`
	AdminFee      uint64     `json:"admin_fee"`
	Balances      []string   `json:"balances"`
	AdminBalances []string   `json:"admin_balances"`
	TotalSupply   string     `json:"total_supply"`
	Invariant     string     `json:"invariant"`
	Phase         string     `json:"phase"`
	Sequence      uint64     `json:"sequence"`
	UpdatedAt     string     `json:"updated_at"`
}

// PoolEvent is an operation committed by the local engine.
type PoolEvent struct {
	Pool      string      `json:"pool"`
	Sequence  uint64      `json:"sequence"`
	EventName string      `json:"event_name"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}
