package kb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSearchByContent 测试正文关键词命中
func TestSearchByContent(t *testing.T) {
	results := Search("pricing")

	require.NotEmpty(t, results)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		assert.Empty(t, r.Message)
		assert.Equal(t, "high", r.Relevance)
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "pricing_info")
}

// TestSearchByCategory 测试分类关键词命中
func TestSearchByCategory(t *testing.T) {
	results := Search("HR")

	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Empty(t, r.Message)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "company_policy")
	assert.Contains(t, ids, "employee_benefits")
}

// TestSearchCaseInsensitive 测试大小写不敏感匹配
func TestSearchCaseInsensitive(t *testing.T) {
	upper := Search("WARRANTY")
	lower := Search("warranty")

	assert.Equal(t, lower, upper)
	require.NotEmpty(t, upper)
	assert.Equal(t, "product_warranty", upper[0].ID)
}

// TestSearchNoMatch 测试未命中返回单条提示消息
func TestSearchNoMatch(t *testing.T) {
	results := Search("zzz")

	require.Len(t, results, 1)
	assert.Empty(t, results[0].ID)
	assert.Contains(t, results[0].Message, `No documents found for "zzz"`)
	assert.Contains(t, results[0].Message, "Available topics")
}

// TestSearchStableOrder 测试结果顺序与文档定义顺序一致
func TestSearchStableOrder(t *testing.T) {
	first := Search("Technical")
	second := Search("Technical")

	assert.Equal(t, first, second)
	require.GreaterOrEqual(t, len(first), 4)
	assert.Equal(t, "product_specs", first[0].ID)
}

// TestSize 测试知识库规模
func TestSize(t *testing.T) {
	assert.Equal(t, 20, Size())
}
