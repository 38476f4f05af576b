package app

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
)

// 管理ユーザー作成時に台帳経由で付与する初期残高。
const (
	adminSeedPoints  = 100
	adminSeedMinutes = 120
)

// errResetNotConfirmed は--yesなしでresetが呼ばれた場合のエラー。
var errResetNotConfirmed = errors.New("reset は全データを削除します。実行するには --yes を指定してください")

// adminOptions はadminサブコマンドのフラグ。
type adminOptions struct {
	username string
	email    string
	password string
}

// newRootCommand はstudyappのコマンドツリーを構築する。
// サブコマンドなしで起動した場合はserveとして動作する。
func newRootCommand(w io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "studyapp",
		Short:         "学習支援APIサーバー",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, runServe)
		},
	}
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)

	rootCmd.AddCommand(
		newServeCommand(w),
		newWorkerCommand(w),
		newMigrateCommand(w),
		newResetCommand(w),
		newAdminCommand(w),
		newInfoCommand(w),
		newHealthcheckCommand(),
	)
	return rootCmd
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "APIサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, runServe)
		},
	}
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "期限切れセッションの定期削除を実行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, runWorker)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "未適用のマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, runMigrate)
		},
	}
}

func newResetCommand(w io.Writer) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "全テーブルを削除して再作成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errResetNotConfirmed
			}
			return withConfig(cmd, w, runReset)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "全データの削除を確認する")
	return cmd
}

func newAdminCommand(w io.Writer) *cobra.Command {
	var opts adminOptions
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "初期残高付きの管理ユーザーを作成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, opts.run)
		},
	}
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "ユーザー名")
	cmd.Flags().StringVarP(&opts.email, "email", "e", "", "メールアドレス")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "パスワード")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newInfoCommand(w io.Writer) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "テーブルごとの件数を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, func(c commandContext) error {
				return runInfo(c, verify)
			})
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "ユーザー集計値と台帳の整合性も検証する")
	return cmd
}

// newHealthcheckCommand はdistroless環境のDockerヘルスチェック用。
// 設定読み込みを行わず、SERVER_PORTのみ参照する。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "ローカルの/healthを確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(healthcheckPort())
		},
	}
}
