package services

import (
	"sort"
	"sync"

	"demand-insight-api/pkg/models"

	"github.com/cespare/xxhash/v2"
)

// EntityModel 製品ごとの学習済みモデル一式
type EntityModel struct {
	Entity            string
	Method            models.TrainingMethod
	Regressor         Regressor
	Scaler            *StandardScaler
	FeatureImportance map[string]float64
	Accuracy          float64
	Metrics           models.TrainingMetrics
}

// HasModel 回帰モデルを使って予測できるか
func (m *EntityModel) HasModel() bool {
	return m != nil && m.Method == models.MethodModel && m.Regressor != nil && m.Scaler != nil
}

const registryShards = 16

type registryShard struct {
	mu     sync.RWMutex
	models map[string]*EntityModel
}

// ModelRegistry 分析1回分のモデル置き場。製品IDのハッシュでシャード分割
type ModelRegistry struct {
	shards [registryShards]registryShard
}

// NewModelRegistry 空のレジストリを作成
func NewModelRegistry() *ModelRegistry {
	r := &ModelRegistry{}
	for i := range r.shards {
		r.shards[i].models = make(map[string]*EntityModel)
	}
	return r
}

// entityHash 製品IDの安定したハッシュ
func entityHash(entity string) uint64 {
	return xxhash.Sum64String(entity)
}

func (r *ModelRegistry) shard(entity string) *registryShard {
	return &r.shards[entityHash(entity)%registryShards]
}

// Put モデルを登録（同じIDは上書き）
func (r *ModelRegistry) Put(m *EntityModel) {
	if m == nil {
		return
	}
	s := r.shard(m.Entity)
	s.mu.Lock()
	s.models[m.Entity] = m
	s.mu.Unlock()
}

// Get モデルを取得
func (r *ModelRegistry) Get(entity string) (*EntityModel, bool) {
	s := r.shard(entity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[entity]
	return m, ok
}

// Len 登録数
func (r *ModelRegistry) Len() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		n += len(r.shards[i].models)
		r.shards[i].mu.RUnlock()
	}
	return n
}

// Entities 登録済みの製品ID（昇順）
func (r *ModelRegistry) Entities() []string {
	var out []string
	for i := range r.shards {
		r.shards[i].mu.RLock()
		for e := range r.shards[i].models {
			out = append(out, e)
		}
		r.shards[i].mu.RUnlock()
	}
	sort.Strings(out)
	return out
}
