package collector

import "sync"

type namedSource struct {
	name   string
	source StatementSource
}

// StatementCollector 汇总一个或多个连接上执行的 SQL 语句
type StatementCollector struct {
	Base
	name string

	mu               sync.Mutex
	connections      []namedSource
	timeCollector    *TimeDataCollector
	forwarded        map[*TracedStatement]struct{}
	renderWithParams bool
	quote            string
}

// NewStatementCollector 创建语句采集器，timeCollector 非空时每条语句同时记为一段计时
func NewStatementCollector(timeCollector *TimeDataCollector, opts ...Option) *StatementCollector {
	return &StatementCollector{
		Base:          newBase(opts),
		name:          "sql",
		timeCollector: timeCollector,
		forwarded:     make(map[*TracedStatement]struct{}),
		quote:         "<>",
	}
}

func (c *StatementCollector) Name() string { return c.name }

// AddConnection 注册一个语句来源，name 为空时使用 default；同名覆盖
func (c *StatementCollector) AddConnection(source StatementSource, name string) {
	if name == "" {
		name = "default"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, conn := range c.connections {
		if conn.name == name {
			c.connections[i].source = source
			return
		}
	}
	c.connections = append(c.connections, namedSource{name: name, source: source})
}

// Connections 已注册的连接名
func (c *StatementCollector) Connections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.connections))
	for _, conn := range c.connections {
		names = append(names, conn.name)
	}
	return names
}

// SetRenderSQLWithParams 展示的 sql 字段是否替换为带参数值的语句
func (c *StatementCollector) SetRenderSQLWithParams(enabled bool, quote string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderWithParams = enabled
	if quote != "" {
		c.quote = quote
	}
}

func (c *StatementCollector) Collect() any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		count, failed int
		accumulated   float64
		memoryUsage   int64
		peak          uint64
		statements    = []any{}
	)
	for _, conn := range c.connections {
		label := "sql"
		if conn.name != "default" {
			label = "sql " + conn.name
		}
		for _, s := range conn.source.ExecutedStatements() {
			count++
			if !s.IsSuccess() {
				failed++
			}
			accumulated += s.Duration()
			memoryUsage += s.MemoryUsage()
			if s.EndMemory() > peak {
				peak = s.EndMemory()
			}

			shown := s.SQL
			if c.renderWithParams {
				shown = s.SQLWithParams(c.quote)
			}
			params := make(map[string]any)
			for k, v := range s.Parameters() {
				params[k] = v
			}
			statements = append(statements, map[string]any{
				"sql":            shown,
				"row_count":      s.RowCount(),
				"stmt_id":        s.PreparedID,
				"prepared_stmt":  s.SQL,
				"params":         params,
				"duration":       s.Duration(),
				"duration_str":   c.formatter.FormatDuration(s.Duration()),
				"memory":         s.MemoryUsage(),
				"memory_str":     c.formatter.FormatBytes(float64(s.MemoryUsage())),
				"end_memory":     s.EndMemory(),
				"end_memory_str": c.formatter.FormatBytes(float64(s.EndMemory())),
				"is_success":     s.IsSuccess(),
				"error_code":     s.ErrorCode(),
				"error_message":  s.ErrorMessage(),
				"connection":     conn.name,
			})

			if c.timeCollector != nil {
				if _, done := c.forwarded[s]; !done {
					c.timeCollector.AddMeasure(s.SQL, s.StartTime(), s.EndTime(), nil, label)
					c.forwarded[s] = struct{}{}
				}
			}
		}
	}

	return map[string]any{
		"nb_statements":            count,
		"nb_failed_statements":     failed,
		"accumulated_duration":     accumulated,
		"accumulated_duration_str": c.formatter.FormatDuration(accumulated),
		"memory_usage":             memoryUsage,
		"memory_usage_str":         c.formatter.FormatBytes(float64(memoryUsage)),
		"peak_memory_usage":        peak,
		"peak_memory_usage_str":    c.formatter.FormatBytes(float64(peak)),
		"statements":               statements,
	}
}

func (c *StatementCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"database": {
			Icon:    "database",
			Widget:  "PhpDebugBar.Widgets.SQLQueriesWidget",
			Map:     c.name,
			Default: "[]",
		},
		"database:badge": {
			Map:     c.name + ".nb_statements",
			Default: "0",
		},
	}
}

func (c *StatementCollector) Assets() Assets {
	return Assets{
		CSS: []string{"widgets/sqlqueries/widget.css"},
		JS:  []string{"widgets/sqlqueries/widget.js"},
	}
}
