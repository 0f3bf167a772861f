package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/config"
	"github.com/kalambet/civicbot/internal/render"
	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/transcript"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.controller.Send(cmd.Context(), strings.Join(args, " "))
		if err != nil && msg.Content == "" {
			return err
		}
		t := render.NewTerminal(os.Stdout, terminalWidth())
		fmt.Println(strings.TrimRight(t.Render(msg.Content), "\n"))
		return nil
	},
}

// --- topics ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List quick topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, t := range catalog.Default().Topics {
			fmt.Printf("%s %s\n", t.Icon, colorize(colorBold, t.Title))
			fmt.Printf("   id: %s\n", colorize(colorCyan, t.ID))
			fmt.Printf("   %s\n", t.Description)
			for _, ex := range t.Examples {
				fmt.Printf("   - %s\n", ex)
			}
		}
		return nil
	},
}

// --- resources ---

var resourcesCmd = &cobra.Command{
	Use:   "resources [query]",
	Short: "Search official forms, guides and contacts",
	Long: `Search official forms, guides and contacts.

Examples:
  civicbot resources
  civicbot resources --type form
  civicbot resources passport`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		switch catalog.ResourceType(typ) {
		case "", catalog.ResourceForm, catalog.ResourceGuide, catalog.ResourceContact:
		default:
			return fmt.Errorf("--type must be form, guide or contact")
		}

		found := catalog.Default().FindResources(catalog.ResourceType(typ), strings.Join(args, " "))
		printResources(os.Stdout, found)
		return nil
	},
}

func init() {
	resourcesCmd.Flags().String("type", "", "filter by type: form, guide or contact")
}

func printResources(w io.Writer, found []catalog.Resource) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No resources found.")
		return
	}
	for _, r := range found {
		fmt.Fprintf(w, "%s  [%s]\n", colorize(colorBold, r.Title), r.Type)
		fmt.Fprintf(w, "   %s\n", r.Description)
		if r.DownloadURL != "" {
			fmt.Fprintf(w, "   download: %s\n", r.DownloadURL)
		}
		if r.ExternalURL != "" {
			fmt.Fprintf(w, "   link: %s\n", r.ExternalURL)
		}
	}
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a civic issue",
	Long: `Report a civic issue. Reports are logged locally and receive a complaint id.

Examples:
  civicbot report --type "Road Repair Needed" --location "MG Road, Pune" \
    --description "Large pothole near the bus stop" --urgency high --attach photo.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		location, _ := cmd.Flags().GetString("location")
		description, _ := cmd.Flags().GetString("description")
		urgency, _ := cmd.Flags().GetString("urgency")
		paths, _ := cmd.Flags().GetStringSlice("attach")
		listTypes, _ := cmd.Flags().GetBool("list-types")

		if listTypes {
			for _, t := range report.Types() {
				fmt.Println(t)
			}
			return nil
		}
		if typ == "" || location == "" || description == "" {
			return fmt.Errorf("--type, --location and --description are required")
		}

		if len(paths) > 0 {
			printStep("Checking %d attachment(s)", len(paths))
		}
		files, err := readAttachments(paths)
		if err != nil {
			return err
		}
		kept, rejected := report.FilterAttachments(files)
		for _, rj := range rejected {
			printWarning("Skipping %s: %s", rj.Name, rj.Reason)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		_, receipt, err := a.controller.SubmitReport(report.Report{
			Type:        typ,
			Location:    location,
			Description: description,
			Urgency:     report.Urgency(urgency),
			Attachments: kept,
		})
		if err != nil && receipt.ID == "" {
			return err
		}

		printSuccess("Report logged as %s", receipt.ID)
		t := render.NewTerminal(os.Stdout, terminalWidth())
		fmt.Println(strings.TrimRight(t.Render(receipt.Message), "\n"))
		return nil
	},
}

func init() {
	reportCmd.Flags().String("type", "", "issue type (see --list-types)")
	reportCmd.Flags().String("location", "", "where the issue is")
	reportCmd.Flags().String("description", "", "what is wrong")
	reportCmd.Flags().String("urgency", "medium", "low, medium or high")
	reportCmd.Flags().StringSlice("attach", nil, "image or PDF files to attach")
	reportCmd.Flags().Bool("list-types", false, "list issue types and exit")
}

// readAttachments loads files for a report. Files over the size limit are
// kept as empty placeholders so FilterAttachments reports them.
func readAttachments(paths []string) ([]report.Attachment, error) {
	var files []report.Attachment
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		name := filepath.Base(p)
		if info.Size() > report.MaxAttachmentSize {
			files = append(files, report.Attachment{Name: name, Size: info.Size()})
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		files = append(files, report.NewAttachment(name, "", data))
	}
	return files, nil
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List logged reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.ListReports(limit)
		if err != nil {
			return fmt.Errorf("listing reports: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No reports found.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("%s  %s  %-6s  %s @ %s\n",
				colorize(colorCyan, r.ID),
				r.CreatedAt.Local().Format(time.DateTime),
				r.Urgency,
				r.Type,
				r.Location,
			)
			fmt.Printf("    %s\n", truncate(r.Description, 80))
		}
		return nil
	},
}

func init() {
	reportsCmd.Flags().Int("limit", 20, "maximum number of reports to list")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the saved conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		msgs := a.controller.Messages()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		printHistory(os.Stdout, msgs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "print the transcript as JSON")
}

func printHistory(w io.Writer, msgs []transcript.Message) {
	for _, m := range msgs {
		who := colorize(colorGreen, "civicbot")
		if m.Sender == transcript.SenderUser {
			who = colorize(colorCyan, "you")
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
	}
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.controller.NewConversation(); err != nil {
			return fmt.Errorf("resetting conversation: %w", err)
		}
		printSuccess("Conversation cleared")
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on OpenRouter",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		models, err := a.client.ListModels(ctx)
		if err != nil {
			return err
		}
		current := a.client.Model()
		for _, m := range models {
			marker := " "
			if m.ID == current {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s\n", marker, m.ID)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("  %s\n", colorize(colorDim, "stored in "+config.Location()))
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += colorize(colorDim, " (from "+k.EnvVar+")")
			}
			fmt.Println(line)
		}
		key := "not set"
		if cfg.HasAPIKey() {
			key = "set"
		}
		fmt.Printf("  %s = %s\n", colorize(colorBold, "openrouter.api_key"), key)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Store the OpenRouter API key in the secret store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value string
		if len(args) == 1 {
			value = args[0]
		} else {
			v, err := readSecret(os.Stdin, "OpenRouter API key: ")
			if err != nil {
				return err
			}
			value = v
		}

		if err := config.SetAPIKey(strings.TrimSpace(value)); err != nil {
			return err
		}
		printSuccess("API key stored")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetKeyCmd)
}

// readSecret prompts without echo on a terminal and reads one line
// otherwise.
func readSecret(f *os.File, prompt string) (string, error) {
	if term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return line, nil
}
