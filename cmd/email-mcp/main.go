package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lgwanai/email-mcp/internal/archive"
	"github.com/lgwanai/email-mcp/internal/attachment"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/logging"
	"github.com/lgwanai/email-mcp/internal/service"
)

var (
	flagConfig  string
	flagStorage string
	flagDev     bool
)

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".email-mcp", "config.yaml")
	}
	return "config.yaml"
}

func buildService() (*service.Service, error) {
	logger, err := logging.New(flagDev)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	accounts := config.NewManager(flagConfig)
	if err := accounts.Load(); err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	archives := archive.NewManager(logger)
	attachments := attachment.NewManager(flagStorage, archives, logger)

	return service.New(accounts, attachments, archives, logger), nil
}

func printResponse(resp *service.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if resp.Status != "success" {
		os.Exit(1)
	}
	return nil
}

func newFetchCmd() *cobra.Command {
	var req service.FetchRequest
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch messages from an account, downloading attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.FetchEmails(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.Account, "account", "", "account address")
	cmd.Flags().StringVar(&req.Folder, "folder", "", "mailbox folder")
	cmd.Flags().StringVar(&req.StartDate, "start-date", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.EndDate, "end-date", "", "window end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&req.Limit, "limit", 10, "maximum messages")
	cmd.Flags().StringVar(&req.StartUID, "start-uid", "", "resume after this uid")
	cmd.Flags().BoolVar(&req.Reverse, "reverse", false, "newest first")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var req service.SearchRequest
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search messages by keyword, one page at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.SearchEmails(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.Account, "account", "", "account address")
	cmd.Flags().StringVar(&req.Folder, "folder", "", "mailbox folder")
	cmd.Flags().StringVar(&req.Keywords, "keywords", "", "space-separated keywords, any may match")
	cmd.Flags().StringVar(&req.Field, "field", "all", "sender, recipient, cc, subject, content, attachment or all")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 10, "matches per page")
	cmd.Flags().StringVar(&req.LastUID, "last-uid", "", "resume cursor from the previous page")
	return cmd
}

func newSendCmd() *cobra.Command {
	var req service.SendRequest
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message over the account's SMTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.SendEmail(cmd.Context(), req))
		},
	}
	cmd.Flags().StringVar(&req.Account, "account", "", "account address")
	cmd.Flags().StringSliceVar(&req.To, "to", nil, "recipients")
	cmd.Flags().StringSliceVar(&req.CC, "cc", nil, "cc recipients")
	cmd.Flags().StringSliceVar(&req.BCC, "bcc", nil, "bcc recipients")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&req.Body, "body", "", "plain text body")
	cmd.Flags().StringVar(&req.HTMLBody, "html-body", "", "html alternative body")
	cmd.Flags().StringSliceVar(&req.Attachments, "attach", nil, "attachment file paths")
	return cmd
}

func newAttachmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Inspect stored attachments",
	}

	var account, uid, filename string
	var hierarchical bool

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the download record for one message",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.GetAttachmentInfo(account, uid))
		},
	}

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Print one attachment as base64",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.ReadAttachment(account, uid, filename))
		},
	}
	readCmd.Flags().StringVar(&filename, "filename", "", "attachment filename")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored files for one message",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.ListAttachments(account, uid, hierarchical))
		},
	}
	listCmd.Flags().BoolVar(&hierarchical, "tree", false, "include directories")

	for _, sub := range []*cobra.Command{infoCmd, readCmd, listCmd} {
		sub.Flags().StringVar(&account, "account", "", "account address")
		sub.Flags().StringVar(&uid, "uid", "", "message uid")
		cmd.AddCommand(sub)
	}
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the attachment store",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.GetStorageStats())
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete message directories older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.CleanupAttachments(days))
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "age cutoff in days")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var account, uid string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Re-run archive extraction for one message",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return printResponse(svc.ExtractArchives(account, uid))
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account address")
	cmd.Flags().StringVar(&uid, "uid", "", "message uid")
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "email-mcp",
		Short: "Multi-account mail retrieval with attachment archiving",
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "account config file")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "attachments", "attachment storage root")
	rootCmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "development logging")

	rootCmd.AddCommand(
		newFetchCmd(),
		newSearchCmd(),
		newSendCmd(),
		newAttachmentsCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newExtractCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
