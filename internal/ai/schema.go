package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"radio-station/internal/apperr"
)

// Schema 编译好的JSON Schema, 用于校验LLM的结构化输出
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// NewSchema 编译JSON Schema
func NewSchema(name, src string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("加载schema %s 失败: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("编译schema %s 失败: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustSchema 编译失败时panic, 仅用于包级变量
func MustSchema(name, src string) *Schema {
	s, err := NewSchema(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode 去掉代码块标记, 校验后反序列化到out.
// 不符合schema的输出是临时错误, 可以重新生成.
func (s *Schema) Decode(raw string, out any) error {
	text := StripCodeFence(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return apperr.Wrapf(err, apperr.KindTransient, "%s 输出不是有效的JSON", s.name)
	}
	if err := s.schema.Validate(v); err != nil {
		return apperr.Wrapf(err, apperr.KindTransient, "%s 输出不符合schema", s.name)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apperr.Wrapf(err, apperr.KindTransient, "解析 %s 输出失败", s.name)
	}
	return nil
}

// StripCodeFence 去掉 ```json ... ``` 包裹
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
