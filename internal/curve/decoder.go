package curve

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
)

var eventNames = []string{
	model.EventTokenExchange,
	model.EventAddLiquidity,
	model.EventRemoveLiquidity,
	model.EventRemoveLiquidityOne,
	model.EventRemoveLiquidityImbalance,
}

// Decoder decodes the events of n-coin pools.
type Decoder struct {
	poolABI     abi.ABI
	n           int
	topicToName map[string]string
}

func NewDecoder(n int) (*Decoder, error) {
	parsed, err := PoolABI(n, IndexUint256)
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, len(eventNames))
	for _, name := range eventNames {
		topicToName[strings.ToLower(parsed.Events[name].ID.Hex())] = name
	}
	return &Decoder{poolABI: parsed, n: n, topicToName: topicToName}, nil
}

// Topics returns the topic0 of every decodable event, for log filters.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		out = append(out, d.poolABI.Events[name].ID)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent with a model.*Data payload.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	event := d.poolABI.Events[name]
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	// Every pool event indexes exactly one address: buyer or provider.
	actor := common.BytesToAddress(topics[0].Bytes()).Hex()

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case model.EventTokenExchange:
		decoded, err = d.decodeExchange(actor, values)
	case model.EventAddLiquidity, model.EventRemoveLiquidityImbalance:
		decoded, err = d.decodeWithInvariant(name, actor, values)
	case model.EventRemoveLiquidity:
		decoded, err = d.decodeRemove(actor, values)
	case model.EventRemoveLiquidityOne:
		decoded, err = d.decodeRemoveOne(actor, values)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func (d *Decoder) decodeExchange(buyer string, values []interface{}) (model.TokenExchangeData, error) {
	if len(values) != 4 {
		return model.TokenExchangeData{}, fmt.Errorf("unexpected values: %d", len(values))
	}
	sold, err := coinIndex(values[0], d.n)
	if err != nil {
		return model.TokenExchangeData{}, fmt.Errorf("sold_id: %w", err)
	}
	bought, err := coinIndex(values[2], d.n)
	if err != nil {
		return model.TokenExchangeData{}, fmt.Errorf("bought_id: %w", err)
	}
	tokensSold, err := asUint256(values[1])
	if err != nil {
		return model.TokenExchangeData{}, err
	}
	tokensBought, err := asUint256(values[3])
	if err != nil {
		return model.TokenExchangeData{}, err
	}
	return model.TokenExchangeData{
		Buyer:        buyer,
		SoldID:       sold,
		TokensSold:   fixedpoint.Format(tokensSold),
		BoughtID:     bought,
		TokensBought: fixedpoint.Format(tokensBought),
	}, nil
}

// decodeWithInvariant handles AddLiquidity and RemoveLiquidityImbalance, which share a
// layout.
func (d *Decoder) decodeWithInvariant(name, provider string, values []interface{}) (interface{}, error) {
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}
	amounts, err := asUint256Slice(values[0], d.n)
	if err != nil {
		return nil, fmt.Errorf("token_amounts: %w", err)
	}
	fees, err := asUint256Slice(values[1], d.n)
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	invariant, err := asUint256(values[2])
	if err != nil {
		return nil, err
	}
	supply, err := asUint256(values[3])
	if err != nil {
		return nil, err
	}
	if name == model.EventAddLiquidity {
		return model.AddLiquidityData{
			Provider:     provider,
			TokenAmounts: formatAll(amounts),
			Fees:         formatAll(fees),
			Invariant:    fixedpoint.Format(invariant),
			TokenSupply:  fixedpoint.Format(supply),
		}, nil
	}
	return model.RemoveLiquidityImbalanceData{
		Provider:     provider,
		TokenAmounts: formatAll(amounts),
		Fees:         formatAll(fees),
		Invariant:    fixedpoint.Format(invariant),
		TokenSupply:  fixedpoint.Format(supply),
	}, nil
}

func (d *Decoder) decodeRemove(provider string, values []interface{}) (model.RemoveLiquidityData, error) {
	if len(values) != 3 {
		return model.RemoveLiquidityData{}, fmt.Errorf("unexpected values: %d", len(values))
	}
	amounts, err := asUint256Slice(values[0], d.n)
	if err != nil {
		return model.RemoveLiquidityData{}, fmt.Errorf("token_amounts: %w", err)
	}
	fees, err := asUint256Slice(values[1], d.n)
	if err != nil {
		return model.RemoveLiquidityData{}, fmt.Errorf("fees: %w", err)
	}
	supply, err := asUint256(values[2])
	if err != nil {
		return model.RemoveLiquidityData{}, err
	}
	return model.RemoveLiquidityData{
		Provider:     provider,
		TokenAmounts: formatAll(amounts),
		Fees:         formatAll(fees),
		TokenSupply:  fixedpoint.Format(supply),
	}, nil
}

// decodeRemoveOne leaves CoinIndex at -1: the event does not carry it.
func (d *Decoder) decodeRemoveOne(provider string, values []interface{}) (model.RemoveLiquidityOneData, error) {
	if len(values) != 2 {
		return model.RemoveLiquidityOneData{}, fmt.Errorf("unexpected values: %d", len(values))
	}
	burned, err := asUint256(values[0])
	if err != nil {
		return model.RemoveLiquidityOneData{}, err
	}
	paid, err := asUint256(values[1])
	if err != nil {
		return model.RemoveLiquidityOneData{}, err
	}
	return model.RemoveLiquidityOneData{
		Provider:    provider,
		TokenAmount: fixedpoint.Format(burned),
		CoinIndex:   -1,
		CoinAmount:  fixedpoint.Format(paid),
	}, nil
}

func coinIndex(value interface{}, n int) (int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if b.Sign() < 0 || !b.IsInt64() || b.Int64() >= int64(n) {
		return 0, fmt.Errorf("coin index %s out of range", b)
	}
	return int(b.Int64()), nil
}

func formatAll(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fixedpoint.Format(v)
	}
	return out
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := 0
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexedCount++
		}
	}
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
