package config

import (
	"fmt"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate 聚合器配置校验
func (b *BarConfig) Validate() error {
	if err := valid.Struct(b); err != nil {
		return fmt.Errorf("bar 配置字段非法: %w", err)
	}
	// 	分块头名称形如 name-1，前缀本身不能以 - 结尾
	if strings.HasSuffix(b.HeaderName, "-") {
		return fmt.Errorf("bar.header_name must not end with '-', got %s", b.HeaderName)
	}
	if b.OpenHandlerURL != "" && !strings.HasPrefix(b.OpenHandlerURL, "/") && !strings.Contains(b.OpenHandlerURL, "://") {
		return fmt.Errorf("bar.open_handler_url must be absolute, got %s", b.OpenHandlerURL)
	}
	return nil
}

//Validate 规则说明
//驱动	必填字段
//none/memory	无
//file	path
//badger	path（in_memory 时可为空）
//sql	sql_driver, dsn, table（仅允许标识符字符）

// Validate 存储配置校验
func (s *StorageConfig) Validate() error {
	if err := valid.Struct(s); err != nil {
		return fmt.Errorf("storage 配置字段非法: %w", err)
	}
	switch s.Driver {
	case "file":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %s", s.Driver)
		}
	case "badger":
		if !s.InMemory && strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %s unless in_memory is set", s.Driver)
		}
	case "sql":
		if s.SQLDriver == "" || s.DSN == "" {
			return fmt.Errorf("storage.sql_driver and storage.dsn are required for driver sql")
		}
		if !tableNamePattern.MatchString(s.Table) {
			return fmt.Errorf("storage.table %q is not a valid identifier", s.Table)
		}
	}
	return nil
}
