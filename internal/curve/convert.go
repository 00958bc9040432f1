package curve

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint256(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", b)
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %s exceeds 256 bits", b)
	}
	return out, nil
}

// asUint256Slice converts a fixed-size uint256[N] ABI value.
func asUint256Slice(value interface{}, n int) ([]*uint256.Int, error) {
	var raw []*big.Int
	switch v := value.(type) {
	case []*big.Int:
		raw = v
	default:
		rv, ok := arrayOfBig(value)
		if !ok {
			return nil, fmt.Errorf("unsupported array type %T", value)
		}
		raw = rv
	}
	if len(raw) != n {
		return nil, fmt.Errorf("expected %d amounts, got %d", n, len(raw))
	}
	out := make([]*uint256.Int, n)
	for i, b := range raw {
		v, err := asUint256(b)
		if err != nil {
			return nil, fmt.Errorf("amount %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// arrayOfBig flattens the [N]*big.Int arrays the ABI decoder produces.
func arrayOfBig(value interface{}) ([]*big.Int, bool) {
	switch v := value.(type) {
	case [2]*big.Int:
		return v[:], true
	case [3]*big.Int:
		return v[:], true
	case [4]*big.Int:
		return v[:], true
	case [5]*big.Int:
		return v[:], true
	case [6]*big.Int:
		return v[:], true
	case [7]*big.Int:
		return v[:], true
	case [8]*big.Int:
		return v[:], true
	default:
		return nil, false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func uint64From(value interface{}) (uint64, error) {
	b, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if b.Sign() < 0 || !b.IsUint64() {
		return 0, fmt.Errorf("value %s does not fit uint64", b)
	}
	return b.Uint64(), nil
}
