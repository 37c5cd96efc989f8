package collector

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

const surroundingLines = 7

// ExceptionsCollector 记录请求期间出现的错误及其调用栈
type ExceptionsCollector struct {
	Base

	mu    sync.Mutex
	errs  []error
	chain bool
}

// NewExceptionsCollector 创建错误采集器
func NewExceptionsCollector(opts ...Option) *ExceptionsCollector {
	return &ExceptionsCollector{Base: newBase(opts)}
}

func (c *ExceptionsCollector) Name() string { return "exceptions" }

// SetChainExceptions 开启后，被包装的错误（Unwrap 链）也逐个记录
func (c *ExceptionsCollector) SetChainExceptions(chain bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain = chain
}

// AddError 记录错误；不带调用栈的错误在此处补充调用栈
func (c *ExceptionsCollector) AddError(err error) {
	if err == nil {
		return
	}
	recorded := err
	if _, ok := err.(stackTracer); !ok {
		recorded = pkgerrors.WithStack(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, recorded)
	if !c.chain {
		return
	}
	prev := err.Error()
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		// pkg/errors 的包装层消息与外层相同，跳过
		if inner.Error() == prev {
			continue
		}
		prev = inner.Error()
		c.errs = append(c.errs, inner)
	}
}

// Errors 已记录的错误
func (c *ExceptionsCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func (c *ExceptionsCollector) Collect() any {
	errs := c.Errors()
	out := make([]any, 0, len(errs))
	for _, err := range errs {
		out = append(out, FormatErrorData(err))
	}
	return map[string]any{
		"count":      len(errs),
		"exceptions": out,
	}
}

// FormatErrorData 错误转为展示结构：类型、消息、位置、调用栈与附近源码
func FormatErrorData(err error) map[string]any {
	data := map[string]any{
		"type":              errorType(err),
		"message":           err.Error(),
		"code":              0,
		"file":              "",
		"line":              0,
		"stack_trace":       "",
		"surrounding_lines": []any{},
	}
	if coded, ok := err.(interface{ Code() int }); ok {
		data["code"] = coded.Code()
	}

	var st stackTracer
	if !errors.As(err, &st) {
		return data
	}
	trace := st.StackTrace()
	data["stack_trace"] = fmt.Sprintf("%+v", trace)
	if len(trace) == 0 {
		return data
	}
	pc := uintptr(trace[0]) - 1
	if fn := runtime.FuncForPC(pc); fn != nil {
		file, line := fn.FileLine(pc)
		data["file"] = file
		data["line"] = line
		data["surrounding_lines"] = readSurroundingLines(file, line)
	}
	return data
}

// errorType 取最内层错误的类型名，pkg/errors 的包装层不计
func errorType(err error) string {
	cause := pkgerrors.Cause(err)
	return fmt.Sprintf("%T", cause)
}

func readSurroundingLines(file string, line int) []any {
	f, err := os.Open(file)
	if err != nil {
		return []any{fmt.Sprintf("Cannot open the file (%s) in which the exception occurred ", file)}
	}
	defer f.Close()

	start := line - 4
	if start < 0 {
		start = 0
	}
	out := []any{}
	scanner := bufio.NewScanner(f)
	for n := 0; scanner.Scan(); n++ {
		if n < start {
			continue
		}
		if len(out) == surroundingLines {
			break
		}
		out = append(out, scanner.Text()+"\n")
	}
	return out
}

func (c *ExceptionsCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"exceptions": {
			Icon:    "bug",
			Widget:  "PhpDebugBar.Widgets.ExceptionsWidget",
			Map:     "exceptions.exceptions",
			Default: "[]",
		},
		"exceptions:badge": {
			Map:     "exceptions.count",
			Default: "null",
		},
	}
}
