package requestid

import (
	"strings"

	"github.com/google/uuid"
)

// Generator 请求ID生成器
type Generator interface {
	Generate() string
}

// GeneratorFunc 函数适配为 Generator
type GeneratorFunc func() string

func (f GeneratorFunc) Generate() string { return f() }

// UUIDGenerator 基于随机 UUIDv4 的生成器，输出 32 位十六进制（不含连字符）
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Default 默认生成器
var Default Generator = UUIDGenerator{}
