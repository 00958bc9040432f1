package model

// Event names emitted by StableSwap pools, on chain and by the local engine.
const (
	EventTokenExchange            = "TokenExchange"
	EventAddLiquidity             = "AddLiquidity"
	EventRemoveLiquidity          = "RemoveLiquidity"
	EventRemoveLiquidityImbalance = "RemoveLiquidityImbalance"
	EventRemoveLiquidityOne       = "RemoveLiquidityOne"
	EventWithdrawAdminFees        = "WithdrawAdminFees"
)

// TokenExchangeData is the TokenExchange event payload. Amounts are base-10 strings in
// native token units.
type TokenExchangeData struct {
	Buyer        string `json:"buyer"`
	SoldID       int    `json:"sold_id"`
	TokensSold   string `json:"tokens_sold"`
	BoughtID     int    `json:"bought_id"`
	TokensBought string `json:"tokens_bought"`
}

// AddLiquidityData is the AddLiquidity event payload.
type AddLiquidityData struct {
	Provider     string   `json:"provider"`
	TokenAmounts []string `json:"token_amounts"`
	Fees         []string `json:"fees"`
	Invariant    string   `json:"invariant"`
	TokenSupply  string   `json:"token_supply"`
}

// RemoveLiquidityData is the RemoveLiquidity event payload.
type RemoveLiquidityData struct {
	Provider     string   `json:"provider"`
	TokenAmounts []string `json:"token_amounts"`
	Fees         []string `json:"fees"`
	TokenSupply  string   `json:"token_supply"`
}

// RemoveLiquidityImbalanceData is the RemoveLiquidityImbalance event payload.
type RemoveLiquidityImbalanceData struct {
	Provider     string   `json:"provider"`
	TokenAmounts []string `json:"token_amounts"`
	Fees         []string `json:"fees"`
	Invariant    string   `json:"invariant"`
	TokenSupply  string   `json:"token_supply"`
}

// RemoveLiquidityOneData is the RemoveLiquidityOne event payload. CoinIndex is -1 when
// the on-chain event does not carry it.
type RemoveLiquidityOneData struct {
	Provider    string `json:"provider"`
	TokenAmount string `json:"token_amount"`
	CoinIndex   int    `json:"coin_index"`
	CoinAmount  string `json:"coin_amount"`
}

// WithdrawAdminFeesData records admin fees paid out by the local engine.
type WithdrawAdminFeesData struct {
	Recipient string   `json:"recipient"`
	Amounts   []string `json:"amounts"`
}
