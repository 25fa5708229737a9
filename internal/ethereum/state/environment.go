package state

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	funcmanager "symevm/internal/ethereum/function_managers"
	"symevm/internal/smt"
)

// DefaultCreator 默认合约地址由它的第0个nonce推导
var DefaultCreator = common.HexToAddress("0xaffeaffeaffeaffeaffeaffeaffeaffeaffeaffe")

const (
	calldataName = "calldata"
	gasName      = "gas"
	balanceName  = "balance"
)

// Environment 执行环境：调用者、calldata、区块信息
// 没有通过setter绑定的字段第一次读取时创建符号常量并缓存，同一次分析内的所有路径共享
// 在EVM里随执行变化的值(GAS、BALANCE)用一元未解释函数作用在新的nonce上
type Environment struct {
	ctx *smt.Context

	address   common.Address
	caller    *common.Address
	origin    *common.Address
	callValue *uint256.Int
	calldata  []byte
	concrete  bool // calldata是否已绑定
	balances  map[common.Address]*uint256.Int

	symbols   map[string]*smt.BitVec
	functions map[string]*smt.Function
	keccak    *funcmanager.KeccakFunctionManager
}

func NewEnvironment(ctx *smt.Context) *Environment {
	return &Environment{
		ctx:       ctx,
		address:   crypto.CreateAddress(DefaultCreator, 0),
		balances:  make(map[common.Address]*uint256.Int),
		symbols:   make(map[string]*smt.BitVec),
		functions: make(map[string]*smt.Function),
		keccak:    funcmanager.NewKeccakFunctionManager(ctx),
	}
}

func (env *Environment) Context() *smt.Context {
	return env.ctx
}

// Keccak SHA3使用的未解释函数
func (env *Environment) Keccak() *funcmanager.KeccakFunctionManager {
	return env.keccak
}

func (env *Environment) SetAddress(address common.Address) *Environment {
	env.address = address
	return env
}

func (env *Environment) SetCaller(address common.Address) *Environment {
	env.caller = &address
	return env
}

func (env *Environment) SetOrigin(address common.Address) *Environment {
	env.origin = &address
	return env
}

func (env *Environment) SetCallValue(value *uint256.Int) *Environment {
	env.callValue = new(uint256.Int).Set(value)
	return env
}

func (env *Environment) SetBalance(address common.Address, value *uint256.Int) *Environment {
	env.balances[address] = new(uint256.Int).Set(value)
	return env
}

// SetCalldata 16进制，0x前缀可选
func (env *Environment) SetCalldata(data string) error {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "0x") && !strings.HasPrefix(data, "0X") {
		data = "0x" + data
	}
	calldata, err := hexutil.Decode(data)
	if err != nil {
		return errors.Wrap(err, "SetCalldata")
	}
	env.calldata = calldata
	env.concrete = true
	return nil
}

func (env *Environment) GetAddress() common.Address {
	return env.address
}

func (env *Environment) HasConcreteCalldata() bool {
	return env.concrete
}

func (env *Environment) Calldata() []byte {
	return env.calldata
}

// symbol 按名字缓存的符号常量
func (env *Environment) symbol(name string) *smt.BitVec {
	if bv, ok := env.symbols[name]; ok {
		return bv
	}
	bv := env.ctx.NewBitVec(name, smt.WordBytes)
	env.symbols[name] = bv
	return bv
}

// function 按名字缓存的未解释函数，参数和返回值宽度单位bit
func (env *Environment) function(name string, arity int, rng uint32) *smt.Function {
	if f, ok := env.functions[name]; ok {
		return f
	}
	domain := make([]uint32, arity)
	for i := range domain {
		domain[i] = smt.WordBytes * smt.ByteBits
	}
	f := env.ctx.NewFunction(name, domain, rng)
	env.functions[name] = f
	return f
}

// nonce 每次调用都是新的符号，保证两次GAS不会被当成同一个值
func (env *Environment) nonce(name string) *smt.BitVec {
	return env.ctx.NewBitVec(name+"_nonce", smt.WordBytes)
}

func addressWord(address common.Address) *smt.BitVec {
	return smt.NewBitVecValFromBytes(address.Bytes()).ZeroExt(smt.WordBytes)
}

// wordToAddress 常量地址的低20byte
func wordToAddress(word *smt.BitVec) (common.Address, bool) {
	v, ok := word.BigInt()
	if !ok {
		return common.Address{}, false
	}
	return common.BigToAddress(v), true
}

func (env *Environment) Address() *smt.BitVec {
	return addressWord(env.address)
}

func (env *Environment) Caller() *smt.BitVec {
	if env.caller != nil {
		return addressWord(*env.caller)
	}
	return env.symbol("caller")
}

func (env *Environment) Origin() *smt.BitVec {
	if env.origin != nil {
		return addressWord(*env.origin)
	}
	return env.symbol("origin")
}

func (env *Environment) CallValue() *smt.BitVec {
	if env.callValue != nil {
		return smt.NewBitVecValFromUint256(env.callValue)
	}
	return env.symbol("callvalue")
}

func (env *Environment) CalldataSize() *smt.BitVec {
	if env.concrete {
		return smt.NewBitVecValInt64(int64(len(env.calldata)), smt.WordBytes)
	}
	return env.symbol("calldatasize")
}

// CalldataByte 越界的位置为0
func (env *Environment) CalldataByte(idx *smt.BitVec) (*smt.BitVec, error) {
	idx = idx.Simplify()
	if env.concrete {
		if i, ok := idx.AsUint64(); ok {
			if i >= uint64(len(env.calldata)) {
				return smt.NewBitVecValInt64(0, 1), nil
			}
			return smt.NewBitVecValInt64(int64(env.calldata[i]), 1), nil
		}
		// 符号下标，对所有位置做ite
		result := smt.NewBitVecValInt64(0, 1)
		for i := len(env.calldata) - 1; i >= 0; i-- {
			at := idx.Eq(smt.NewBitVecValInt64(int64(i), smt.WordBytes))
			result = at.Ite(smt.NewBitVecValInt64(int64(env.calldata[i]), 1), result)
		}
		return result, nil
	}
	value, err := env.function(calldataName, 1, smt.ByteBits).Apply(idx)
	if err != nil {
		return nil, errors.Wrap(err, "calldata")
	}
	inBounds := idx.Ult(env.CalldataSize())
	return inBounds.Ite(value, smt.NewBitVecValInt64(0, 1)), nil
}

// CalldataByteAt offset+i处的byte，offset+i超过2^256-1时为0而不是回绕
func (env *Environment) CalldataByteAt(offset *smt.BitVec, i int) (*smt.BitVec, error) {
	idx := offset.Add(smt.NewBitVecValInt64(int64(i), smt.WordBytes)).Simplify()
	b, err := env.CalldataByte(idx)
	if err != nil || i == 0 {
		return b, err
	}
	wrapped := idx.Ult(offset)
	switch {
	case wrapped.IsTrue():
		return smt.NewBitVecValInt64(0, 1), nil
	case wrapped.IsFalse():
		return b, nil
	}
	return wrapped.Ite(smt.NewBitVecValInt64(0, 1), b), nil
}

// CalldataLoad 从offset开始的32byte，大端序
func (env *Environment) CalldataLoad(offset *smt.BitVec) (*smt.BitVec, error) {
	parts := make([]*smt.BitVec, smt.WordBytes)
	for i := range parts {
		b, err := env.CalldataByteAt(offset, i)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return smt.FromBytes(parts...).Simplify(), nil
}

func (env *Environment) GasPrice() *smt.BitVec {
	return env.symbol("gasprice")
}

func (env *Environment) Coinbase() *smt.BitVec {
	return env.symbol("coinbase")
}

func (env *Environment) Timestamp() *smt.BitVec {
	return env.symbol("timestamp")
}

func (env *Environment) BlockNumber() *smt.BitVec {
	return env.symbol("blocknumber")
}

func (env *Environment) Difficulty() *smt.BitVec {
	return env.symbol("difficulty")
}

func (env *Environment) GasLimit() *smt.BitVec {
	return env.symbol("gaslimit")
}

func (env *Environment) ChainID() *smt.BitVec {
	return env.symbol("chainid")
}

func (env *Environment) BaseFee() *smt.BitVec {
	return env.symbol("basefee")
}

func (env *Environment) apply(name string, args ...*smt.BitVec) (*smt.BitVec, error) {
	result, err := env.function(name, len(args), smt.WordBytes*smt.ByteBits).Apply(args...)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return result, nil
}

func (env *Environment) BlockHash(number *smt.BitVec) (*smt.BitVec, error) {
	return env.apply("blockhash", number)
}

func (env *Environment) ExtCodeSize(address *smt.BitVec) (*smt.BitVec, error) {
	return env.apply("extcodesize", address)
}

func (env *Environment) ExtCodeHash(address *smt.BitVec) (*smt.BitVec, error) {
	return env.apply("extcodehash", address)
}

// Gas gas(nonce)
func (env *Environment) Gas() (*smt.BitVec, error) {
	return env.apply(gasName, env.nonce(gasName))
}

// Balance 绑定过的常量地址返回常量，否则为balance(address, nonce)
func (env *Environment) Balance(address *smt.BitVec) (*smt.BitVec, error) {
	if a, ok := wordToAddress(address.Simplify()); ok {
		if value, bound := env.balances[a]; bound {
			return smt.NewBitVecValFromUint256(value), nil
		}
	}
	return env.apply(balanceName, address, env.nonce(balanceName))
}
