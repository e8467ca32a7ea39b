package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ShadowRouterABI is the ABI of the ShadowRouter contract
const ShadowRouterABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "user", "type": "address"},
			{
				"components": [
					{"internalType": "Currency", "name": "currency0", "type": "address"},
					{"internalType": "Currency", "name": "currency1", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "int24", "name": "tickSpacing", "type": "int24"},
					{"internalType": "contract IHooks", "name": "hooks", "type": "address"}
				],
				"internalType": "struct PoolKey",
				"name": "key",
				"type": "tuple"
			},
			{"internalType": "bool", "name": "zeroForOne", "type": "bool"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"}
		],
		"name": "executeMatch",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "solver",
		"outputs": [
			{"internalType": "address", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "manager",
		"outputs": [
			{"internalType": "contract IPoolManager", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "tokenIn", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "tokenOut", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"name": "MatchExecuted",
		"type": "event"
	}
]`

// PoolKey is an auto generated low-level Go binding around an user-defined struct.
type PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

// ShadowRouter is an auto generated Go binding around an Ethereum contract.
type ShadowRouter struct {
	ShadowRouterCaller     // Read-only binding to the contract
	ShadowRouterTransactor // Write-only binding to the contract
	ShadowRouterFilterer   // Log filterer for contract events
}

// ShadowRouterCaller is an auto generated read-only Go binding around an Ethereum contract.
type ShadowRouterCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// ShadowRouterTransactor is an auto generated write-only Go binding around an Ethereum contract.
type ShadowRouterTransactor struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// ShadowRouterFilterer is an auto generated log filtering Go binding around an Ethereum contract events.
type ShadowRouterFilterer struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewShadowRouter creates a new instance of ShadowRouter, bound to a specific deployed contract.
func NewShadowRouter(address common.Address, backend bind.ContractBackend) (*ShadowRouter, error) {
	contract, err := bindShadowRouter(address, backend, backend, backend)
	if err != nil {
		return nil, err
	}
	return &ShadowRouter{
		ShadowRouterCaller:     ShadowRouterCaller{contract: contract},
		ShadowRouterTransactor: ShadowRouterTransactor{contract: contract},
		ShadowRouterFilterer:   ShadowRouterFilterer{contract: contract},
	}, nil
}

// bindShadowRouter binds a generic wrapper to an already deployed contract.
func bindShadowRouter(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(ShadowRouterABI))
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, caller, transactor, filterer), nil
}

// Solver is a free data retrieval call binding the contract method solver.
//
// Solidity: function solver() view returns(address)
func (_ShadowRouter *ShadowRouterCaller) Solver(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	err := _ShadowRouter.contract.Call(opts, &out, "solver")
	if err != nil {
		return *new(common.Address), err
	}

	out0 := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return out0, err
}

// Manager is a free data retrieval call binding the contract method manager.
//
// Solidity: function manager() view returns(address)
func (_ShadowRouter *ShadowRouterCaller) Manager(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	err := _ShadowRouter.contract.Call(opts, &out, "manager")
	if err != nil {
		return *new(common.Address), err
	}

	out0 := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return out0, err
}

// ExecuteMatch is a paid mutator transaction binding the contract method executeMatch.
//
// Solidity: function executeMatch(address user, (address,address,uint24,int24,address) key, bool zeroForOne, uint256 amountIn) payable returns(uint256 amountOut)
func (_ShadowRouter *ShadowRouterTransactor) ExecuteMatch(opts *bind.TransactOpts, user common.Address, key PoolKey, zeroForOne bool, amountIn *big.Int) (*types.Transaction, error) {
	return _ShadowRouter.contract.Transact(opts, "executeMatch", user, key, zeroForOne, amountIn)
}

// ShadowRouterMatchExecuted represents a MatchExecuted event raised by the ShadowRouter contract.
type ShadowRouterMatchExecuted struct {
	User      common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Raw       types.Log // Blockchain specific contextual infos
}

// ParseMatchExecuted is a log parse operation binding the contract event MatchExecuted.
//
// Solidity: event MatchExecuted(address indexed user, address indexed tokenIn, address indexed tokenOut, uint256 amountIn, uint256 amountOut)
func (_ShadowRouter *ShadowRouterFilterer) ParseMatchExecuted(log types.Log) (*ShadowRouterMatchExecuted, error) {
	event := new(ShadowRouterMatchExecuted)
	if err := _ShadowRouter.contract.UnpackLog(event, "MatchExecuted", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
