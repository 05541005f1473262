// Package syncset 提供并发安全的字符串集合，用作下载中的去重表
package syncset

import "sync"

type Set struct {
	m sync.Map
}

func New() *Set {
	return &Set{}
}

// Add 插入key，key已经存在时返回false
func (s *Set) Add(key string) bool {
	_, loaded := s.m.LoadOrStore(key, struct{}{})
	return !loaded
}

func (s *Set) Contains(key string) bool {
	_, ok := s.m.Load(key)
	return ok
}

func (s *Set) Remove(key string) {
	s.m.Delete(key)
}

func (s *Set) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
