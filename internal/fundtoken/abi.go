package fundtoken

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const fundTokenABIJSON = `[
  {
    "inputs": [],
    "name": "getFundMetrics",
    "outputs": [
      {"internalType": "uint256", "name": "totalAssetValue", "type": "uint256"},
      {"internalType": "uint256", "name": "sharesSupply", "type": "uint256"},
      {"internalType": "uint256", "name": "lastUpdateTime", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getSharePrice",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "investor", "type": "address"},
      {"internalType": "uint256", "name": "usdAmount", "type": "uint256"}
    ],
    "name": "invest",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "investor", "type": "address"},
      {"internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "redeem",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "account", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	fundTokenABI     abi.ABI
	fundTokenABIOnce sync.Once
	fundTokenABIErr  error
)

// FundTokenABI returns the parsed FundToken contract ABI.
func FundTokenABI() (abi.ABI, error) {
	fundTokenABIOnce.Do(func() {
		fundTokenABI, fundTokenABIErr = abi.JSON(strings.NewReader(fundTokenABIJSON))
	})
	return fundTokenABI, fundTokenABIErr
}
