package idgen

// Generator ID 生成器接口
type Generator interface {
	// NextID 生成下一个唯一 ID
	NextID() (int64, error)
}

// Config ID 生成器配置
type Config struct {
	// MachineID 0-65535，多实例部署时必须互不相同
	MachineID uint16 `mapstructure:"machine_id"`
}
