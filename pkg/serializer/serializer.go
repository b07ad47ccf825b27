package serializer

import (
	"encoding/json"
	"fmt"
)

// Serializer 序列化器接口
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
	// ContentType 内容类型，写入消息头
	ContentType() string
}

// JSON JSON 序列化器
type JSON struct{}

// NewJSON 创建 JSON 序列化器
func NewJSON() *JSON {
	return &JSON{}
}

func (s *JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSON) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (s *JSON) ContentType() string {
	return "application/json"
}

// ByName 按名称选择序列化器：json、msgpack
func ByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return NewJSON(), nil
	case "msgpack":
		return NewMsgpack(), nil
	default:
		return nil, fmt.Errorf("serializer: unknown format %q", name)
	}
}
