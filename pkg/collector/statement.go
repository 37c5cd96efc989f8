package collector

import (
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const binaryPlaceholder = "[BINARY DATA]"

// Param 语句参数，Name 为空表示位置参数
type Param struct {
	Name  string
	Value any
}

// TracedStatement 一次已执行（或执行中）的 SQL 语句记录
type TracedStatement struct {
	SQL        string
	PreparedID string

	params      []Param
	start       time.Time
	end         time.Time
	startMemory uint64
	endMemory   uint64
	rowCount    int64
	err         error
}

// NewTracedStatement 创建语句记录，args 可包含 sql.NamedArg；非 UTF-8 参数替换为 [BINARY DATA]
func NewTracedStatement(query string, args []any, preparedID string) *TracedStatement {
	params := make([]Param, 0, len(args))
	for _, a := range args {
		p := Param{Value: a}
		if named, ok := a.(sql.NamedArg); ok {
			p = Param{Name: named.Name, Value: named.Value}
		}
		p.Value = checkParam(p.Value)
		params = append(params, p)
	}
	return &TracedStatement{SQL: query, PreparedID: preparedID, params: params}
}

func checkParam(v any) any {
	switch val := v.(type) {
	case []byte:
		if !utf8.Valid(val) {
			return binaryPlaceholder
		}
		return string(val)
	case string:
		if !utf8.ValidString(val) {
			return binaryPlaceholder
		}
	}
	return v
}

// Start 记录开始时间与内存，零值取当前值
func (s *TracedStatement) Start(at time.Time, memory uint64) {
	if at.IsZero() {
		at = time.Now()
	}
	if memory == 0 {
		memory = HeapInUse()
	}
	s.start = at
	s.startMemory = memory
}

// End 记录结束时间、影响行数与错误
func (s *TracedStatement) End(err error, rowCount int64, at time.Time, memory uint64) {
	if at.IsZero() {
		at = time.Now()
	}
	if memory == 0 {
		memory = HeapInUse()
	}
	s.end = at
	s.endMemory = memory
	s.rowCount = rowCount
	s.err = err
}

func (s *TracedStatement) StartTime() time.Time { return s.start }
func (s *TracedStatement) EndTime() time.Time   { return s.end }
func (s *TracedStatement) RowCount() int64      { return s.rowCount }
func (s *TracedStatement) EndMemory() uint64    { return s.endMemory }
func (s *TracedStatement) Err() error           { return s.err }
func (s *TracedStatement) IsSuccess() bool      { return s.err == nil }

// Duration 执行耗时（秒）
func (s *TracedStatement) Duration() float64 {
	return s.end.Sub(s.start).Seconds()
}

// MemoryUsage 执行前后的堆内存差值，可能为负
func (s *TracedStatement) MemoryUsage() int64 {
	return int64(s.endMemory) - int64(s.startMemory)
}

// ErrorCode 驱动错误码（错误实现 Code() int 时），否则为 0
func (s *TracedStatement) ErrorCode() int {
	if coded, ok := s.err.(interface{ Code() int }); ok {
		return coded.Code()
	}
	return 0
}

func (s *TracedStatement) ErrorMessage() string {
	if s.err == nil {
		return ""
	}
	return s.err.Error()
}

// Parameters 参数展示值，位置参数以下标为键
func (s *TracedStatement) Parameters() map[string]any {
	out := make(map[string]any, len(s.params))
	pos := 0
	for _, p := range s.params {
		if p.Name == "" {
			out[strconv.Itoa(pos)] = paramString(p.Value)
			pos++
			continue
		}
		out[p.Name] = paramString(p.Value)
	}
	return out
}

func paramString(v any) string {
	if v == nil {
		return "NULL"
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02 15:04:05")
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	return strings.TrimSpace(defaultDump(v))
}

// SQLWithParams 用参数值替换占位符（?、$N、:name、@name），引号内的内容保持不变
// quote 为包裹参数值的字符，长度为偶数时前后两半分别作为左右包裹
func (s *TracedStatement) SQLWithParams(quote string) string {
	left, right := quote, quote
	if l := len(quote); l > 1 {
		left, right = quote[:l/2], quote[l/2:]
	}

	var positional []string
	named := make(map[string]string)
	for _, p := range s.params {
		if p.Name == "" {
			positional = append(positional, paramString(p.Value))
		} else {
			named[strings.TrimLeft(p.Name, ":@$")] = paramString(p.Value)
		}
	}

	q := s.SQL
	var b strings.Builder
	b.Grow(len(q))
	next := 0
	var inQuote byte
	for i := 0; i < len(q); i++ {
		ch := q[i]
		if inQuote != 0 {
			b.WriteByte(ch)
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			inQuote = ch
			b.WriteByte(ch)
		case ch == '?':
			if next < len(positional) {
				b.WriteString(left + positional[next] + right)
				next++
			} else {
				b.WriteByte(ch)
			}
		case ch == '$' && i+1 < len(q) && isDigit(q[i+1]):
			j := i + 1
			for j < len(q) && isDigit(q[j]) {
				j++
			}
			n, _ := strconv.Atoi(q[i+1 : j])
			if n >= 1 && n <= len(positional) {
				b.WriteString(left + positional[n-1] + right)
			} else {
				b.WriteString(q[i:j])
			}
			i = j - 1
		case (ch == ':' || ch == '@' || ch == '$') && i+1 < len(q) && isWordStart(q[i+1]) && (i == 0 || q[i-1] != ':'):
			j := i + 1
			for j < len(q) && isWord(q[j]) {
				j++
			}
			if v, ok := named[q[i+1:j]]; ok {
				b.WriteString(left + v + right)
			} else {
				b.WriteString(q[i:j])
			}
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isWordStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isWord(c byte) bool      { return isWordStart(c) || isDigit(c) }

// StatementSource 提供已执行语句的一方（如被追踪的数据库连接）
type StatementSource interface {
	ExecutedStatements() []*TracedStatement
}

// StatementLog 并发安全的语句记录表，实现 StatementSource
type StatementLog struct {
	mu    sync.Mutex
	stmts []*TracedStatement
}

// AddStatement 追加一条已结束的语句
func (l *StatementLog) AddStatement(s *TracedStatement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stmts = append(l.stmts, s)
}

func (l *StatementLog) ExecutedStatements() []*TracedStatement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*TracedStatement(nil), l.stmts...)
}

// Reset 清空记录（连接在多个请求间复用时使用）
func (l *StatementLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stmts = nil
}
