package chain

import (
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultDecimals 债券代币和募资金额的精度
const DefaultDecimals = 18

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// FromBaseUnits 把链上整数金额转换为十进制金额
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// ToBaseUnits 把十进制金额转换为链上整数金额，多余的小数位被截断
func ToBaseUnits(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}

// FromUnixSeconds 链上时间戳转为 UTC 时间
func FromUnixSeconds(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// IsValidTxHash 检查交易哈希格式：0x 加 64 位十六进制
func IsValidTxHash(hash string) bool {
	return txHashPattern.MatchString(hash)
}

// IsValidAddress 检查 0x 地址格式
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address) && strings.HasPrefix(address, "0x")
}

// NormalizeAddress 地址统一为小写
func NormalizeAddress(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// NormalizeHash 交易哈希统一为小写
func NormalizeHash(hash string) string {
	return strings.ToLower(hash)
}
