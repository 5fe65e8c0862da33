// Package memory хранилище учёта участников в памяти процесса.
// Используется в тестах сервисов и при storage_driver: memory.
// Транзакция InTx работает на снимке состояния: при ошибке снимок восстанавливается.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

type state struct {
	seq map[string]int64

	members       map[int64]models.Member
	services      map[int64]models.MemberService
	transactions  map[int64]models.BankTransaction
	subscriptions map[int64]models.ServiceSubscription
	invoices      map[int64]models.Invoice
	logs          []models.UsersLog
}

func newState() *state {
	return &state{
		seq:           make(map[string]int64),
		members:       make(map[int64]models.Member),
		services:      make(map[int64]models.MemberService),
		transactions:  make(map[int64]models.BankTransaction),
		subscriptions: make(map[int64]models.ServiceSubscription),
		invoices:      make(map[int64]models.Invoice),
	}
}

// clone копирует карты. Значения в картах не изменяются на месте,
// любая запись кладёт новую копию, поэтому поверхностной копии достаточно.
func (st *state) clone() *state {
	return &state{
		seq:           maps.Clone(st.seq),
		members:       maps.Clone(st.members),
		services:      maps.Clone(st.services),
		transactions:  maps.Clone(st.transactions),
		subscriptions: maps.Clone(st.subscriptions),
		invoices:      maps.Clone(st.invoices),
		logs:          slices.Clone(st.logs),
	}
}

func (st *state) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

// Store реализует storage.Store в памяти.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st:  newState(),
		now: time.Now,
	}
}

// InTx выполняет fn под эксклюзивной блокировкой. Ошибка fn возвращает
// состояние к снимку, сделанному до вызова.
func (s *Store) InTx(ctx context.Context, fn storage.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn storage.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &tx{st: s.st, now: s.now})
}

func (s *Store) Close() error {
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// sortedValues возвращает копии значений по возрастанию id.
func sortedValues[V any](m map[int64]V, clone func(V) V, keep func(V) bool) []*V {
	ids := slices.Sorted(maps.Keys(m))
	res := make([]*V, 0, len(ids))
	for _, id := range ids {
		v := m[id]
		if keep == nil || keep(v) {
			v = clone(v)
			res = append(res, &v)
		}
	}
	return res
}
