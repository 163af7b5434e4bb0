// Package presence хранит в памяти, какие пользователи сейчас подключены.
package presence

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // userID -> набор connID
}

// Registry - потокобезопасный реестр соединений. Пользователь онлайн,
// пока у него есть хотя бы одно соединение. Ничего не сохраняется между рестартами.
type Registry struct {
	shards [shardCount]*shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[string]map[string]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register добавляет соединение. true - это первое соединение пользователя.
func (r *Registry) Register(userID, connID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		s.conns[userID] = set
	}
	first := len(set) == 0
	set[connID] = struct{}{}
	return first
}

// Remove удаляет соединение. true - у пользователя больше не осталось соединений.
// Повторное удаление того же connID ничего не делает и возвращает false.
func (r *Registry) Remove(userID, connID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		return false
	}
	if _, had := set[connID]; !had {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.conns, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0
}

// Connections - число активных соединений пользователя
func (r *Registry) Connections(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}

// OnlineUserIDs - снимок всех онлайн-пользователей (порядок не определен)
func (r *Registry) OnlineUserIDs() []string {
	var ids []string
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.conns {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	return ids
}

// Count - число онлайн-пользователей
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.conns)
		s.mu.RUnlock()
	}
	return total
}
