package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/prompt"
)

func newThemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "組み込みテーマの一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, theme := range prompt.Themes() {
				fmt.Fprintln(cmd.OutOrStdout(), theme)
			}
			return nil
		},
	}
}

func newPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <theme> <title>",
		Short: "生成に使うプロンプトを表示する（リモートは呼ばない）",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme, title := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if theme == "" || title == "" {
				return errors.New("主题和标题不能为空")
			}
			if _, variant := prompt.Lookup(theme); variant == prompt.VariantDefault {
				fmt.Fprintf(cmd.ErrOrStderr(), "未知のテーマ %q のため既定の語彙を使います\n", theme)
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.Build(theme, title))
			return nil
		},
	}
}

func newGenerateCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <theme> <title>",
		Short: "ポスターを1枚生成し、画像URLを表示する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme, title := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if theme == "" || title == "" {
				return errors.New("主题和标题不能为空")
			}
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			jobID, err := rt.orch.Create(ctx, prompt.Build(theme, title), rt.jobOpts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "task %s created, waiting...\n", jobID)

			wait := rt.wait
			wait.Observer = func(attempt int, snap *kie.Snapshot) {
				rt.logger.Debug().Int("attempt", attempt).Str("state", string(snap.State)).Msg("polled")
			}
			outcome, err := rt.orch.Wait(ctx, jobID, wait)
			if err != nil {
				return err
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("%s: %s", jobID, outcome.Message())
			}

			if _, err := rt.history.Record(ctx, historyKey, history.Entry{
				JobID:    jobID,
				Theme:    theme,
				Title:    title,
				ImageURL: outcome.ImageURL,
			}); err != nil {
				rt.logger.Warn().Err(err).Msg("failed to record history")
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.ImageURL)
			return nil
		},
	}
	addGenerationFlags(cmd, opts)
	return cmd
}

func newBatchCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [theme:title ...]",
		Short: "複数のポスターをまとめて生成する",
		Long: `引数に theme:title を並べるか、--file で [{"theme":"zoo","title":"动物世界"}] 形式の JSON を指定します。
1件の失敗は他の項目に影響しません。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := loadBatchItems(opts.itemsFile, args)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			created := rt.orch.CreateBatch(ctx, prompt.BuildBatch(items), rt.jobOpts)
			var ids []string
			for _, cr := range created {
				if cr.Succeeded() {
					ids = append(ids, cr.JobID)
				}
			}
			waited := rt.orch.WaitBatch(ctx, ids, rt.wait)

			rows := make([]batchRow, len(items))
			next := 0
			for i, cr := range created {
				row := batchRow{theme: items[i].Theme, title: items[i].Title, task: "-", state: "error"}
				if !cr.Succeeded() {
					row.result = cr.Err.Error()
					rows[i] = row
					continue
				}
				wr := waited[next]
				next++
				row.task = wr.JobID
				switch {
				case wr.Err != nil:
					row.result = wr.Err.Error()
				case wr.Outcome.Succeeded():
					row.ok = true
					row.state = string(wr.Outcome.State)
					row.result = wr.Outcome.ImageURL
					if _, err := rt.history.Record(ctx, historyKey, history.Entry{
						JobID:    wr.JobID,
						Theme:    items[i].Theme,
						Title:    items[i].Title,
						ImageURL: wr.Outcome.ImageURL,
					}); err != nil {
						rt.logger.Warn().Err(err).Msg("failed to record history")
					}
				default:
					row.state = string(wr.Outcome.State)
					row.result = wr.Outcome.Message()
				}
				rows[i] = row
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "THEME\tTITLE\tTASK\tSTATE\tRESULT")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.theme, r.title, r.task, r.state, r.result)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			summary := jobs.Summarize(rows)
			fmt.Fprintf(cmd.OutOrStdout(), "total %d, success %d, failed %d\n", summary.Total, summary.Succeeded, summary.Failed)
			return nil
		},
	}
	addGenerationFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.itemsFile, "file", "f", "", "項目を列挙した JSON ファイル")
	return cmd
}

// batchRow は batch コマンドの出力1行分です。
type batchRow struct {
	theme, title, task, state, result string
	ok                                bool
}

func (r batchRow) Succeeded() bool { return r.ok }

func loadBatchItems(file string, args []string) ([]prompt.Item, error) {
	var items []prompt.Item
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}
	for _, arg := range args {
		theme, title, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid item %q (want theme:title)", arg)
		}
		items = append(items, prompt.Item{Theme: theme, Title: title})
	}
	if len(items) == 0 {
		return nil, errors.New("请提供有效的生成项目列表")
	}
	for i := range items {
		items[i].Theme = strings.TrimSpace(items[i].Theme)
		items[i].Title = strings.TrimSpace(items[i].Title)
		if items[i].Theme == "" || items[i].Title == "" {
			return nil, errors.New("每个项目必须包含 theme 和 title")
		}
	}
	return items, nil
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "ローカルの生成履歴（最新20件）を扱う",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "履歴を新しい順に表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hist, err := openHistory(opts)
			if err != nil {
				return err
			}
			entries, err := hist.List(cmd.Context(), historyKey)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTHEME\tTITLE\tIMAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Theme, e.Title, e.ImageURL)
			}
			return tw.Flush()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "履歴をすべて削除する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hist, err := openHistory(opts)
			if err != nil {
				return err
			}
			confirmed := opts.yes
			if !confirmed {
				confirmed = askConfirmation(cmd, "确定要清空所有历史记录吗？[y/N] ")
			}
			if err := hist.Clear(cmd.Context(), historyKey, confirmed); err != nil {
				if errors.Is(err, history.ErrConfirmationRequired) {
					fmt.Fprintln(cmd.OutOrStdout(), "canceled")
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "確認なしで削除する")

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func askConfirmation(cmd *cobra.Command, question string) bool {
	fmt.Fprint(cmd.OutOrStdout(), question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
