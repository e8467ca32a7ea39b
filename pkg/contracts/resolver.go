package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TextResolverABI is the ABI of an ENS public resolver's text record interface
const TextResolverABI = `[
	{
		"inputs": [
			{"internalType": "bytes32", "name": "node", "type": "bytes32"},
			{"internalType": "string", "name": "key", "type": "string"},
			{"internalType": "string", "name": "value", "type": "string"}
		],
		"name": "setText",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "node", "type": "bytes32"},
			{"internalType": "string", "name": "key", "type": "string"}
		],
		"name": "text",
		"outputs": [
			{"internalType": "string", "name": "", "type": "string"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// TextResolver is an auto generated Go binding around an Ethereum contract.
type TextResolver struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewTextResolver creates a new instance of TextResolver, bound to a specific deployed contract.
func NewTextResolver(address common.Address, backend bind.ContractBackend) (*TextResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(TextResolverABI))
	if err != nil {
		return nil, err
	}
	return &TextResolver{contract: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

// SetText is a paid mutator transaction binding the contract method setText.
//
// Solidity: function setText(bytes32 node, string key, string value) returns()
func (_TextResolver *TextResolver) SetText(opts *bind.TransactOpts, node [32]byte, key string, value string) (*types.Transaction, error) {
	return _TextResolver.contract.Transact(opts, "setText", node, key, value)
}

// Text is a free data retrieval call binding the contract method text.
//
// Solidity: function text(bytes32 node, string key) view returns(string)
func (_TextResolver *TextResolver) Text(opts *bind.CallOpts, node [32]byte, key string) (string, error) {
	var out []interface{}
	err := _TextResolver.contract.Call(opts, &out, "text", node, key)
	if err != nil {
		return *new(string), err
	}

	out0 := *abi.ConvertType(out[0], new(string)).(*string)
	return out0, err
}

// Namehash computes the ENS node for a dotted name.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		copy(node[:], crypto.Keccak256(node[:], labelHash))
	}
	return node
}
