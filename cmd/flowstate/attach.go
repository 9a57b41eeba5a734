package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"flowstate-go/internal/app"
	"flowstate-go/internal/flow"
	"flowstate-go/internal/model"
)

// attach command
var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Manage project attachments",
}

var attachAddCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Attach files to a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetInt64("project")
		external, _ := cmd.Flags().GetBool("external")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		opts := flow.IngestOptions{
			ComponentID:     optionalInt64(cmd, "component"),
			ProblemID:       optionalInt64(cmd, "problem"),
			UserDescription: optionalString(cmd, "description"),
			Tags:            tags,
			CopyIntoBundle:  !external,
		}

		return withApp("AttachAdd", func(a *app.FlowApp) error {
			attachments, err := a.Attach(args, projectID, opts)
			if err != nil {
				return fmt.Errorf("attaching: %w", err)
			}
			for _, att := range attachments {
				fmt.Printf("#%d  %s  %s  %s\n", att.ID, att.FilePath, humanize.Bytes(uint64(att.FileSize)), shortHash(att.FileHash))
				if att.FileHash == nil {
					continue
				}
				dupes, err := a.Attachments().Duplicates(*att.FileHash)
				if err == nil && len(dupes) > 1 {
					fmt.Printf("    same content as %d other attachment(s)\n", len(dupes)-1)
				}
			}
			return nil
		})
	},
}

var attachListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attachments, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := model.AttachmentFilter{
			ProjectID:   optionalInt64(cmd, "project"),
			ComponentID: optionalInt64(cmd, "component"),
			ProblemID:   optionalInt64(cmd, "problem"),
		}
		return withApp("AttachList", func(a *app.FlowApp) error {
			attachments, err := a.Attachments().List(filter)
			if err != nil {
				return err
			}
			if len(attachments) == 0 {
				fmt.Println("No attachments.")
				return nil
			}
			for _, att := range attachments {
				location := "bundle"
				if att.IsExternal {
					location = "external"
				}
				fmt.Printf("#%-5d  project %-4d  %-8s  %-8s  %8s  %s  %s\n",
					att.ID, att.ProjectID, flow.Category(att.FileType), location,
					humanize.Bytes(uint64(att.FileSize)), humanize.Time(att.CreatedAt), att.FileName)
			}
			return nil
		})
	},
}

var attachShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an attachment and optionally its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		showContent, _ := cmd.Flags().GetBool("content")

		return withApp("AttachShow", func(a *app.FlowApp) error {
			att, err := a.Attachments().Get(id)
			if err != nil {
				return err
			}

			fmt.Printf("ID:          %d\n", att.ID)
			fmt.Printf("Project:     %d\n", att.ProjectID)
			fmt.Printf("File:        %s (%s, %s)\n", att.FileName, att.FileType, humanize.Bytes(uint64(att.FileSize)))
			fmt.Printf("Path:        %s\n", a.Attachments().ResolvePath(att))
			fmt.Printf("Hash:        %s\n", orDash(att.FileHash))
			fmt.Printf("Description: %s\n", orDash(att.UserDescription))
			if len(att.Tags) > 0 {
				fmt.Printf("Tags:        %s\n", strings.Join(att.Tags, ", "))
			}
			if att.AISummary != nil {
				fmt.Printf("Summary:     %s\n", *att.AISummary)
			}
			fmt.Printf("Indexed:     %s\n", ago(att.IndexedAt))

			if !showContent {
				return nil
			}
			content, err := a.Attachments().ReadAttachment(id)
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}
			fmt.Printf("\n[%s %s]\n", content.Kind, content.MimeType)
			switch {
			case content.Text != "":
				fmt.Println(content.Text)
			case content.Base64 != "":
				fmt.Printf("%d bytes base64-encoded\n", len(content.Base64))
			}
			return nil
		})
	},
}

var attachUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update attachment metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		upd := model.AttachmentUpdate{
			UserDescription: optionalString(cmd, "description"),
			AIDescription:   optionalString(cmd, "ai-description"),
			AISummary:       optionalString(cmd, "ai-summary"),
		}
		if cmd.Flags().Changed("tag") {
			tags, _ := cmd.Flags().GetStringSlice("tag")
			upd.Tags = &tags
		}
		if cmd.Flags().Changed("extracted") {
			extracted, _ := cmd.Flags().GetBool("extracted")
			upd.ContentExtracted = &extracted
		}

		return withApp("AttachUpdate", func(a *app.FlowApp) error {
			att, err := a.Attachments().Update(id, upd)
			if err != nil {
				return err
			}
			fmt.Printf("Updated #%d %s\n", att.ID, att.FileName)
			return nil
		})
	},
}

var attachRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		keepFile, _ := cmd.Flags().GetBool("keep-file")

		return withApp("AttachRemove", func(a *app.FlowApp) error {
			if err := a.Attachments().Remove(id, !keepFile); err != nil {
				return err
			}
			fmt.Printf("Removed #%d\n", id)
			return nil
		})
	},
}

func shortHash(hash *string) string {
	if hash == nil {
		return "(unhashed)"
	}
	if len(*hash) > 12 {
		return (*hash)[:12]
	}
	return *hash
}

func init() {
	attachCmd.AddCommand(attachAddCmd)
	attachAddCmd.Flags().Int64P("project", "p", 0, "Project ID")
	attachAddCmd.MarkFlagRequired("project")
	attachAddCmd.Flags().Int64("component", 0, "Component ID")
	attachAddCmd.Flags().Int64("problem", 0, "Problem ID")
	attachAddCmd.Flags().StringP("description", "d", "", "Description")
	attachAddCmd.Flags().StringSliceP("tag", "t", nil, "Tag (repeatable)")
	attachAddCmd.Flags().Bool("external", false, "Reference the file in place instead of copying it")

	attachCmd.AddCommand(attachListCmd)
	attachListCmd.Flags().Int64P("project", "p", 0, "Only this project")
	attachListCmd.Flags().Int64("component", 0, "Only this component")
	attachListCmd.Flags().Int64("problem", 0, "Only this problem")

	attachCmd.AddCommand(attachShowCmd)
	attachShowCmd.Flags().BoolP("content", "c", false, "Print the file content")

	attachCmd.AddCommand(attachUpdateCmd)
	attachUpdateCmd.Flags().StringP("description", "d", "", "Description")
	attachUpdateCmd.Flags().StringSliceP("tag", "t", nil, "Replace tags")
	attachUpdateCmd.Flags().String("ai-description", "", "Generated description")
	attachUpdateCmd.Flags().String("ai-summary", "", "Generated summary")
	attachUpdateCmd.Flags().Bool("extracted", false, "Mark content as extracted")

	attachCmd.AddCommand(attachRmCmd)
	attachRmCmd.Flags().Bool("keep-file", false, "Keep the bundled file on disk")
}
