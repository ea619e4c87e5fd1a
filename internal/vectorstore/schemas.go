package vectorstore

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 字段名约定：主键为内容哈希或外部键，向量列固定为embedding
const (
	FieldHash      = "hash"
	FieldEmbedding = "embedding"
	FieldText      = "text"
)

// ConflictPolicy 主键冲突时的插入策略
type ConflictPolicy string

const (
	// ConflictUpsert 后写覆盖
	ConflictUpsert ConflictPolicy = "upsert"
	// ConflictSkip 冲突时跳过（wiki入库策略）
	ConflictSkip ConflictPolicy = "skip"
)

// AttributeField 集合的附加varchar字段（建表时固定，不支持动态字段）
type AttributeField struct {
	Name      string
	MaxLength int
}

// CollectionSpec 一个命名集合的完整定义：schema、索引参数、检索参数
// schema创建后不可变，修改需要drop后重建
type CollectionSpec struct {
	Name           string
	Dimension      int
	TextMaxLength  int
	Attributes     []AttributeField
	Metric         entity.MetricType
	IndexM         int
	IndexEfBuild   int
	SearchEf       int
	TextCap        int // 入库前文本截断上限（字符数）
	ConflictPolicy ConflictPolicy
}

// AttributeNames 附加字段名列表，顺序与schema一致
func (s CollectionSpec) AttributeNames() []string {
	names := make([]string, len(s.Attributes))
	for i, attr := range s.Attributes {
		names[i] = attr.Name
	}
	return names
}

// SmallerIsCloser 指标语义：欧氏距离越小越近，余弦/内积越大越近
func (s CollectionSpec) SmallerIsCloser() bool {
	return s.Metric == entity.L2
}

// AddressSpec 地址集合：login哈希 + 地址文本 + house_id/flat
func AddressSpec() CollectionSpec {
	return CollectionSpec{
		Name:          "Address",
		Dimension:     1024,
		TextMaxLength: 255,
		Attributes: []AttributeField{
			{Name: "house_id", MaxLength: 100},
			{Name: "flat", MaxLength: 20},
		},
		Metric:         entity.L2,
		IndexM:         8,
		IndexEfBuild:   150,
		SearchEf:       200,
		TextCap:        255,
		ConflictPolicy: ConflictUpsert,
	}
}

// PromptSpec 提示词模板集合
func PromptSpec() CollectionSpec {
	return CollectionSpec{
		Name:          "Promts",
		Dimension:     1024,
		TextMaxLength: 10000,
		Attributes: []AttributeField{
			{Name: "name", MaxLength: 255},
			{Name: "params", MaxLength: 255},
		},
		Metric:         entity.L2,
		IndexM:         16,
		IndexEfBuild:   300,
		SearchEf:       200,
		TextCap:        10000,
		ConflictPolicy: ConflictUpsert,
	}
}

// WikiSpec 企业WIKI集合，余弦检索
func WikiSpec() CollectionSpec {
	return CollectionSpec{
		Name:           "Frida_bot_data",
		Dimension:      1024,
		TextMaxLength:  50000,
		Metric:         entity.COSINE,
		IndexM:         16,
		IndexEfBuild:   300,
		SearchEf:       200,
		TextCap:        20000,
		ConflictPolicy: ConflictSkip,
	}
}

// buildSchema 根据spec生成Milvus collection schema
func buildSchema(spec CollectionSpec) *entity.Schema {
	fields := []*entity.Field{
		{
			Name:       FieldHash,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			TypeParams: map[string]string{"max_length": "255"},
		},
		{
			Name:     FieldEmbedding,
			DataType: entity.FieldTypeFloatVector,
			TypeParams: map[string]string{
				"dim": intString(spec.Dimension),
			},
		},
		{
			Name:     FieldText,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": intString(spec.TextMaxLength),
			},
		},
	}
	for _, attr := range spec.Attributes {
		fields = append(fields, &entity.Field{
			Name:     attr.Name,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": intString(attr.MaxLength),
			},
		})
	}

	return &entity.Schema{
		CollectionName: spec.Name,
		Fields:         fields,
	}
}

func intString(v int) string {
	return strconv.Itoa(v)
}
