package debugbar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/debugbar-collector/pkg/logger"
	"github.com/debugbar-collector/pkg/openhandler"
	"github.com/debugbar-collector/pkg/storage"
)

var (
	findFilters []string
	findMax     int
	findOffset  int
	findTable   bool
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List stored dataset metadata, newest first",
	Example: `  debugbar find --storage.driver file --filter method=POST --filter 'uri=/api/*'
  debugbar find --max 50 --table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{"op": {"find"}}
		params.Set("max", strconv.Itoa(findMax))
		params.Set("offset", strconv.Itoa(findOffset))
		for _, f := range findFilters {
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("invalid filter %q, expected key=pattern", f)
			}
			params.Set(k, v)
		}
		return withHandler(cmd, func(ctx context.Context, h *openhandler.Handler, s storage.Storage) error {
			res, err := h.Handle(ctx, params)
			if err != nil {
				return err
			}
			if !findTable {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			metas, _ := res.([]storage.Meta)
			return writeTable(ctx, cmd.OutOrStdout(), s, metas)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one stored dataset as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandler(cmd, func(ctx context.Context, h *openhandler.Handler, _ storage.Storage) error {
			res, err := h.Handle(ctx, url.Values{"op": {"get"}, "id": {args[0]}})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHandler(cmd, func(ctx context.Context, h *openhandler.Handler, _ storage.Storage) error {
			res, err := h.Handle(ctx, url.Values{"op": {"clear"}})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	initFindFlags(findCmd)
}

func initFindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&findFilters, "filter", nil, "-> Meta filter key=glob, repeatable | 过滤条件")
	f.IntVar(&findMax, "max", openhandler.DefaultMax, "-> Max results | 最大条数")
	f.IntVar(&findOffset, "offset", 0, "-> Results to skip | 跳过条数")
	f.BoolVar(&findTable, "table", false, "-> Print a table instead of JSON | 表格输出")
}

// withHandler 按配置打开存储并创建 open handler，fn 返回后释放存储
func withHandler(cmd *cobra.Command, fn func(ctx context.Context, h *openhandler.Handler, s storage.Storage) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, closer, err := storage.Open(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("open storage failed: %w", err)
	}
	defer func() { _ = closer.Close() }()

	h, err := openhandler.New(s, openhandler.WithLogger(logger.Named("openhandler")))
	if err != nil {
		return err
	}
	return fn(ctx, h, s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTable 每行附带数据集编码后的大小
func writeTable(ctx context.Context, w io.Writer, s storage.Storage, metas []storage.Meta) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATETIME\tMETHOD\tURI\tIP\tSIZE")
	var total uint64
	for _, m := range metas {
		id := fmt.Sprint(m["id"])
		size := "-"
		if data, err := s.Get(ctx, id); err == nil {
			if raw, err := json.Marshal(data); err == nil {
				total += uint64(len(raw))
				size = humanize.Bytes(uint64(len(raw)))
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%v\t%v\t%v\t%v\t%s\n", id, m["datetime"], m["method"], m["uri"], m["ip"], size)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s datasets, %s\n", humanize.Comma(int64(len(metas))), humanize.Bytes(total))
	return err
}
