package wizard

import (
	"sync"

	"github.com/google/uuid"
)

type guardEntry struct {
	step       int
	generation uint64
}

// Guard 异步操作守卫，步骤切换后丢弃过期的结果
type Guard struct {
	mu   sync.Mutex
	orch *Orchestrator
	ops  map[string]guardEntry
}

// NewGuard 创建守卫
func NewGuard(orch *Orchestrator) *Guard {
	return &Guard{orch: orch, ops: make(map[string]guardEntry)}
}

// NewID 生成操作ID
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Register 登记一个属于step的异步操作，同时记录当前激活
func (g *Guard) Register(id string, step int) {
	tok := g.orch.Token()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops[id] = guardEntry{step: step, generation: tok.generation}
}

// IsValid 操作所属步骤仍是当前激活时返回true；否则注销并返回false
func (g *Guard) IsValid(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.ops[id]
	if !ok {
		return false
	}
	tok := Token{Step: entry.step, generation: entry.generation, orch: g.orch}
	if !tok.IsCurrent() {
		delete(g.ops, id)
		return false
	}
	return true
}

// Unregister 注销操作
func (g *Guard) Unregister(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ops, id)
}

// Clear 注销所有操作
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = make(map[string]guardEntry)
}

// Pending 未注销的操作数量
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ops)
}
