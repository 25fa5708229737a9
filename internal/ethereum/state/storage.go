package state

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	yices2 "github.com/ianamason/yices2_go_bindings/yices_api"
	"github.com/pkg/errors"

	"symevm/internal/smt"
)

// ErrArrayValue 期望标量的位置读到了数组
var ErrArrayValue = errors.New("storage value is an array")

// StorageValue 标量字或数组，二者只有一个非nil
type StorageValue struct {
	Word  *smt.BitVec
	Array *smt.Array
}

func WordValue(word *smt.BitVec) StorageValue {
	return StorageValue{Word: word}
}

func ArrayValue(array *smt.Array) StorageValue {
	return StorageValue{Array: array}
}

func (v StorageValue) IsArray() bool {
	return v.Array != nil
}

type storageEntry struct {
	key   *smt.BitVec
	value StorageValue
}

// AccountStorage 单个账户的存储 key(32byte) -> value
// writes按写入顺序排列，同一个key只保留最后一次写入
type AccountStorage struct {
	writes  []storageEntry
	touched map[yices2.TermT]*smt.BitVec
}

func NewAccountStorage() *AccountStorage {
	return &AccountStorage{
		touched: make(map[yices2.TermT]*smt.BitVec),
	}
}

func (s *AccountStorage) Len() int {
	return len(s.writes)
}

func (s *AccountStorage) touch(key *smt.BitVec) {
	s.touched[key.GetRaw()] = key
}

// Get 未写过的key返回0
// key或已写入的key是符号时，返回按写入顺序嵌套的ite，最近的写入在最外层
// 只读，touched由ApplyChange里的Read记录
func (s *AccountStorage) Get(key *smt.BitVec) (*smt.BitVec, error) {
	key = key.Simplify()
	var (
		base     = StorageValue{Word: smt.NewBitVecValInt64(0, smt.WordBytes)}
		relevant = make([]storageEntry, 0)
	)
	for i := len(s.writes) - 1; i >= 0; i-- {
		e := s.writes[i]
		if e.key.GetRaw() == key.GetRaw() {
			base = e.value
			break
		}
		// 两个不同的常量一定不相等
		if !e.key.IsSymbolic() && !key.IsSymbolic() {
			continue
		}
		relevant = append(relevant, e)
	}
	if base.IsArray() {
		return nil, ErrArrayValue
	}
	result := base.Word
	for i := len(relevant) - 1; i >= 0; i-- {
		e := relevant[i]
		if e.value.IsArray() {
			return nil, ErrArrayValue
		}
		result = key.Eq(e.key).Ite(e.value.Word, result)
	}
	return result, nil
}

// GetValue 不做ite合并，只按term精确匹配，用于读取数组值
func (s *AccountStorage) GetValue(key *smt.BitVec) (StorageValue, bool) {
	key = key.Simplify()
	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].key.GetRaw() == key.GetRaw() {
			return s.writes[i].value, true
		}
	}
	return StorageValue{}, false
}

func (s *AccountStorage) Set(key *smt.BitVec, value StorageValue) {
	key = key.Simplify()
	s.touch(key)
	for i := range s.writes {
		if s.writes[i].key.GetRaw() == key.GetRaw() {
			s.writes = append(s.writes[:i], s.writes[i+1:]...)
			break
		}
	}
	s.writes = append(s.writes, storageEntry{key: key, value: value})
}

func (s *AccountStorage) SetWord(key, value *smt.BitVec) {
	s.Set(key, WordValue(value))
}

// Keys 按写入顺序
func (s *AccountStorage) Keys() []*smt.BitVec {
	result := make([]*smt.BitVec, len(s.writes))
	for i := range s.writes {
		result[i] = s.writes[i].key
	}
	return result
}

// Touched 读写过的key，按term排序
func (s *AccountStorage) Touched() []*smt.BitVec {
	result := make([]*smt.BitVec, 0, len(s.touched))
	for _, key := range s.touched {
		result = append(result, key)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GetRaw() < result[j].GetRaw()
	})
	return result
}

func (s *AccountStorage) Clone() *AccountStorage {
	result := &AccountStorage{
		writes:  make([]storageEntry, len(s.writes)),
		touched: make(map[yices2.TermT]*smt.BitVec, len(s.touched)),
	}
	copy(result.writes, s.writes)
	for k, v := range s.touched {
		result.touched[k] = v
	}
	return result
}

// GlobalStorage address -> AccountStorage
type GlobalStorage struct {
	accounts map[common.Address]*AccountStorage
}

func NewGlobalStorage() *GlobalStorage {
	return &GlobalStorage{
		accounts: make(map[common.Address]*AccountStorage),
	}
}

// Account 不存在时创建
func (g *GlobalStorage) Account(address common.Address) *AccountStorage {
	account, ok := g.accounts[address]
	if !ok {
		account = NewAccountStorage()
		g.accounts[address] = account
	}
	return account
}

// Get 只读，不会创建账户
func (g *GlobalStorage) Get(address common.Address, key *smt.BitVec) (*smt.BitVec, error) {
	account, ok := g.accounts[address]
	if !ok {
		return smt.NewBitVecValInt64(0, smt.WordBytes), nil
	}
	return account.Get(key)
}

func (g *GlobalStorage) Set(address common.Address, key, value *smt.BitVec) {
	g.Account(address).SetWord(key, value)
}

// Addresses 按字节序排序
func (g *GlobalStorage) Addresses() []common.Address {
	result := make([]common.Address, 0, len(g.accounts))
	for address := range g.accounts {
		result = append(result, address)
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i][:], result[j][:]) < 0
	})
	return result
}

func (g *GlobalStorage) Clone() *GlobalStorage {
	result := &GlobalStorage{
		accounts: make(map[common.Address]*AccountStorage, len(g.accounts)),
	}
	for address, account := range g.accounts {
		result.accounts[address] = account.Clone()
	}
	return result
}

// ApplyChange Write写入，Read只记录touched
func (g *GlobalStorage) ApplyChange(change *StorageChange) error {
	for _, op := range change.Ops {
		switch op.Kind {
		case StorageRead:
			g.Account(op.Addr).touch(op.Key.Simplify())
		case StorageWrite:
			g.Set(op.Addr, op.Key, op.Value)
		default:
			return errors.Errorf("unknown storage op %d", op.Kind)
		}
	}
	return nil
}
