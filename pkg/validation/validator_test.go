package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nested builds {"nested": {"nested": ... {"value": 1} ... }} with the given
// total depth.
func nested(depth int) json.RawMessage {
	doc := `{"value": 1}`
	for i := 1; i < depth; i++ {
		doc = `{"nested": ` + doc + `}`
	}
	return json.RawMessage(doc)
}

func TestValidateContent_DepthBoundary(t *testing.T) {
	v := NewValidator(nil)

	t.Run("at limit", func(t *testing.T) {
		assert.Nil(t, v.ValidateContent("content", nested(10)))
	})

	t.Run("one over limit", func(t *testing.T) {
		err := v.ValidateContent("content", nested(11))
		require.NotNil(t, err)
		assert.Equal(t, TooDeep, err.Kind)
		assert.Equal(t, "content", err.Field)
	})

	t.Run("arrays count as nesting", func(t *testing.T) {
		// 6 objects interleaved with 5 arrays: depth 11.
		doc := `{"a": [{"a": [{"a": [{"a": [{"a": [{"a": 1}]}]}]}]}]}`
		err := v.ValidateContent("content", json.RawMessage(doc))
		require.NotNil(t, err)
		assert.Equal(t, TooDeep, err.Kind)
	})

	t.Run("flat object", func(t *testing.T) {
		assert.Nil(t, v.ValidateContent("content", json.RawMessage(`{"a": 1, "b": "two"}`)))
	})

	t.Run("empty object", func(t *testing.T) {
		assert.Nil(t, v.ValidateContent("content", json.RawMessage(`{}`)))
	})

	t.Run("bare scalar", func(t *testing.T) {
		assert.Nil(t, v.ValidateContent("content", json.RawMessage(`42`)))
	})
}

func TestValidateContent_SizeBoundary(t *testing.T) {
	v := NewValidator(&Config{MaxDepth: 10, MaxContentBytes: 64, MaxTitleLength: 200})

	// {"v": "xx...x"} padded to exactly 64 bytes.
	pad := func(total int) json.RawMessage {
		overhead := len(`{"v": ""}`)
		return json.RawMessage(`{"v": "` + strings.Repeat("x", total-overhead) + `"}`)
	}

	t.Run("at limit", func(t *testing.T) {
		content := pad(64)
		require.Len(t, content, 64)
		assert.Nil(t, v.ValidateContent("content", content))
	})

	t.Run("one byte over", func(t *testing.T) {
		content := pad(65)
		require.Len(t, content, 65)
		err := v.ValidateContent("content", content)
		require.NotNil(t, err)
		assert.Equal(t, TooLarge, err.Kind)
	})
}

func TestValidateContent_InvalidJSON(t *testing.T) {
	v := NewValidator(nil)

	err := v.ValidateContent("content", json.RawMessage(`{"a":`))
	require.NotNil(t, err)
	assert.Equal(t, InvalidValue, err.Kind)
}

func TestValidateContent_Empty(t *testing.T) {
	v := NewValidator(nil)
	assert.Nil(t, v.ValidateContent("content", nil))
}

func TestValidateTitle(t *testing.T) {
	v := NewValidator(nil)

	t.Run("valid", func(t *testing.T) {
		assert.Nil(t, v.ValidateTitle("Reduce changeover time"))
	})

	t.Run("missing", func(t *testing.T) {
		err := v.ValidateTitle("   ")
		require.NotNil(t, err)
		assert.Equal(t, MissingField, err.Kind)
		assert.Equal(t, "title", err.Field)
	})

	t.Run("at length limit", func(t *testing.T) {
		assert.Nil(t, v.ValidateTitle(strings.Repeat("a", 200)))
	})

	t.Run("over length limit", func(t *testing.T) {
		err := v.ValidateTitle(strings.Repeat("a", 201))
		require.NotNil(t, err)
		assert.Equal(t, InvalidValue, err.Kind)
	})

	t.Run("surrounding whitespace does not count", func(t *testing.T) {
		assert.Nil(t, v.ValidateTitle("  "+strings.Repeat("a", 200)+"  "))
	})
}

func TestValidateRequiredID(t *testing.T) {
	v := NewValidator(nil)

	assert.Nil(t, v.ValidateRequiredID("department_id", 3))

	err := v.ValidateRequiredID("department_id", 0)
	require.NotNil(t, err)
	assert.Equal(t, MissingField, err.Kind)
	assert.Equal(t, "department_id", err.Field)
}
